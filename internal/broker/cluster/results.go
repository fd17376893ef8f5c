package cluster

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/baca2/kolejka-broker/pkg/protocol"
)

// satoriResult is the shape of one test's entry in results.yaml.
type satoriResult struct {
	Status          string `yaml:"status"`
	ExecuteTimeReal string `yaml:"execute_time_real"`
	ExecuteTimeCPU  string `yaml:"execute_time_cpu"`
	ExecuteMemory   string `yaml:"execute_memory"`
}

type testEntry struct {
	Satori satoriResult `yaml:"satori"`
}

// parseResults is a pure function of the file contents (spec.md R3): the
// YAML is a mapping test_name -> {satori: {...}}. The three numeric
// fields carry a trailing unit character that is stripped before
// conversion: execute_time_real/cpu become floating-point seconds,
// execute_memory becomes an integer byte count (spec.md §4.3, bit-exact
// boundary contract).
func parseResults(setName, resultDir string) (protocol.SetResult, error) {
	path := filepath.Join(resultDir, "results", "results.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return protocol.SetResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var content map[string]testEntry
	if err := yaml.Unmarshal(raw, &content); err != nil {
		return protocol.SetResult{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	tests := make(map[string]protocol.TestResult, len(content))
	for name, entry := range content {
		timeReal, err := stripUnitAndParseFloat(entry.Satori.ExecuteTimeReal)
		if err != nil {
			return protocol.SetResult{}, fmt.Errorf("test %q execute_time_real: %w", name, err)
		}
		timeCPU, err := stripUnitAndParseFloat(entry.Satori.ExecuteTimeCPU)
		if err != nil {
			return protocol.SetResult{}, fmt.Errorf("test %q execute_time_cpu: %w", name, err)
		}
		memory, err := stripUnitAndParseInt(entry.Satori.ExecuteMemory)
		if err != nil {
			return protocol.SetResult{}, fmt.Errorf("test %q execute_memory: %w", name, err)
		}
		tests[name] = protocol.TestResult{
			Name:          name,
			Status:        entry.Satori.Status,
			TimeReal:      timeReal,
			TimeCPU:       timeCPU,
			RuntimeMemory: memory,
		}
	}

	return protocol.SetResult{Name: setName, Tests: tests}, nil
}

func stripUnitAndParseFloat(s string) (float64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s[:len(s)-1], 64)
}

func stripUnitAndParseInt(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseInt(s[:len(s)-1], 10, 64)
}
