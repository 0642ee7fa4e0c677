package network

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Connection is one entry from the imported connections list. Loaded once
// per run and read-only afterwards.
type Connection struct {
	FullName          string
	Company           string
	CompanyNormalized string
	Title             string
}

// LoadConnections parses a LinkedIn Connections.csv export. The export
// starts with a short free-text preamble before the real header row, so the
// reader skips lines until it finds the "First Name" header. A missing file
// is not an error: the matcher simply has nobody to match against.
func LoadConnections(path string, logger *zap.Logger) ([]*Connection, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Warn("connections file not found, network matching disabled", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening connections file: %w", err)
	}
	defer file.Close()

	connections, err := parseConnections(file)
	if err != nil {
		return nil, fmt.Errorf("parsing connections file %s: %w", path, err)
	}

	logger.Info("connections loaded", zap.Int("count", len(connections)), zap.String("path", path))
	return connections, nil
}

func parseConnections(r io.Reader) ([]*Connection, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows strings.Builder
	header := false
	for scanner.Scan() {
		line := scanner.Text()
		if !header {
			if strings.HasPrefix(strings.TrimSpace(line), "First Name") {
				header = true
			} else {
				continue
			}
		}
		rows.WriteString(line)
		rows.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !header {
		return nil, fmt.Errorf("no header row found")
	}

	reader := csv.NewReader(strings.NewReader(rows.String()))
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(head))
	for i, name := range head {
		col[strings.TrimSpace(name)] = i
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var connections []*Connection
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		company := field(record, "Company")
		if company == "" {
			continue
		}

		name := strings.TrimSpace(field(record, "First Name") + " " + field(record, "Last Name"))
		connections = append(connections, &Connection{
			FullName:          name,
			Company:           company,
			CompanyNormalized: NormalizeCompany(company),
			Title:             field(record, "Position"),
		})
	}

	return connections, nil
}
