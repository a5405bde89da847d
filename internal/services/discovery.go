package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"agenticdebugger/internal/models"
)

// WriteDiscovery atomically publishes the primary's descriptor at path
func WriteDiscovery(path string, info models.DiscoveryInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal discovery info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create discovery dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".agentic_discovery_*.tmp")
	if err != nil {
		return fmt.Errorf("create discovery temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write discovery info: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close discovery info: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish discovery info: %w", err)
	}
	return nil
}

// ReadDiscovery loads the descriptor at path
func ReadDiscovery(path string) (models.DiscoveryInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.DiscoveryInfo{}, fmt.Errorf("read discovery info: %w", err)
	}
	var info models.DiscoveryInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return models.DiscoveryInfo{}, fmt.Errorf("parse discovery info %s: %w", path, err)
	}
	if info.Port <= 0 {
		return models.DiscoveryInfo{}, fmt.Errorf("discovery info %s has no port", path)
	}
	return info, nil
}

// RemoveDiscovery deletes the descriptor if it still belongs to pid. A
// descriptor already taken over by another primary is left alone.
func RemoveDiscovery(path string, pid int) (bool, error) {
	info, err := ReadDiscovery(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		// unreadable descriptors are ours to clean up
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return false, rmErr
		}
		return true, nil
	}
	if info.PID != pid {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove discovery info: %w", err)
	}
	return true, nil
}
