package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CompaniesFileName is the board registry kept alongside the ledger and
// tracker in the data directory. add-company and expand-ats write it; run
// merges it with the companies listed in the config file.
const CompaniesFileName = "ats_companies.json"

type companiesFile struct {
	Companies []CompanyRef `json:"companies"`
}

// LoadCompanies reads the board registry. A missing file is an empty
// registry, not an error.
func LoadCompanies(dataDir string) ([]CompanyRef, error) {
	path := filepath.Join(dataDir, CompaniesFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading companies file %s: %w", path, err)
	}

	var file companiesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing companies file %s: %w", path, err)
	}

	return file.Companies, nil
}

// SaveCompanies writes the board registry, creating the data directory on
// first use.
func SaveCompanies(dataDir string, companies []CompanyRef) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(companiesFile{Companies: companies}, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, CompaniesFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing companies file %s: %w", path, err)
	}

	return nil
}

// MergeCompanies combines the config companies with the registry, keeping
// the first entry when both name the same company.
func MergeCompanies(primary, secondary []CompanyRef) []CompanyRef {
	merged := make([]CompanyRef, 0, len(primary)+len(secondary))
	seen := map[string]bool{}

	for _, list := range [][]CompanyRef{primary, secondary} {
		for _, company := range list {
			key := strings.ToLower(strings.TrimSpace(company.Name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, company)
		}
	}

	return merged
}
