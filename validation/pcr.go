package validation

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// DefaultPCRConfigPath returns the pcrs.json shipped next to this package
func DefaultPCRConfigPath() string {
	// Get the path to this file at runtime
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	return filepath.Join(dir, "pcrs.json")
}

// LoadPCRsFromFile loads known PCR sets from a JSON file
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}

	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	for i, set := range config.PCRSets {
		for name, v := range map[string]string{"pcr0": set.PCR0, "pcr1": set.PCR1, "pcr2": set.PCR2} {
			if !isSHA384Hex(v) {
				return nil, fmt.Errorf("PCR set #%d: %s is not a SHA-384 hex digest", i, name)
			}
		}
	}

	return config.PCRSets, nil
}

func isSHA384Hex(s string) bool {
	if len(s) != 2*sha512.Size384 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ValidatePCRs checks if PCRs match any known valid set
// Returns: (match bool, matched set index)
// If no match, returns (false, -1)
func ValidatePCRs(pcrs enclaveapi.PCRs, knownSets []PCRSet) (bool, int) {
	for i, knownSet := range knownSets {
		if strings.EqualFold(pcrs.ImageFileHash, knownSet.PCR0) &&
			strings.EqualFold(pcrs.KernelHash, knownSet.PCR1) &&
			strings.EqualFold(pcrs.ApplicationHash, knownSet.PCR2) {
			return true, i
		}
	}
	return false, -1
}
