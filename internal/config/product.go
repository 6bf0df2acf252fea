package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ProductItem is one listing the seller is handling.
type ProductItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ListedPrice float64 `json:"listed_price"`
	BottomPrice float64 `json:"bottom_price"` // lowest acceptable
}

// ProductConfig is the runtime-mutable product catalog.
// It lives in its own file because admin commands rewrite it while the
// daemon runs.
type ProductConfig struct {
	Items            []ProductItem `json:"items"`
	ActiveItemID     string        `json:"active_item_id"`
	Location         string        `json:"location"`
	AvailabilityNote string        `json:"availability_note"`
}

// ActiveItem returns the configured active listing, falling back to the
// first item, then to a placeholder.
func (p *ProductConfig) ActiveItem() ProductItem {
	for _, it := range p.Items {
		if it.ID == p.ActiveItemID {
			return it
		}
	}
	if len(p.Items) > 0 {
		return p.Items[0]
	}
	return ProductItem{ID: "unknown", Name: "Item"}
}

func defaultProductConfig() *ProductConfig {
	return &ProductConfig{
		Items: []ProductItem{{
			ID:          "cable-1m",
			Name:        "Brand new Type c-c cable non braided 1m",
			ListedPrice: 4,
			BottomPrice: 3,
		}},
		ActiveItemID:     "cable-1m",
		Location:         "Richmond Public Library main branch (Brighouse)",
		AvailabilityNote: "Mon-Fri after 4pm",
	}
}

// Products guards the product catalog for concurrent access from the driver
// loop, the Telegram admin commands, and the fsnotify watcher.
type Products struct {
	mu   sync.RWMutex
	path string
	cfg  *ProductConfig
}

// LoadProducts reads the catalog, creating a default file when absent.
func LoadProducts(path string) (*Products, error) {
	p := &Products{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the catalog file, writing defaults first if it is missing.
func (p *Products) Reload() error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		cfg := defaultProductConfig()
		if werr := writeProductConfig(p.path, cfg); werr != nil {
			return werr
		}
		p.mu.Lock()
		p.cfg = cfg
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read product config: %w", err)
	}

	var cfg ProductConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse product config: %w", err)
	}
	p.mu.Lock()
	p.cfg = &cfg
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current catalog.
func (p *Products) Snapshot() ProductConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg := *p.cfg
	cfg.Items = append([]ProductItem(nil), p.cfg.Items...)
	return cfg
}

// SetAvailability updates the availability note and persists the catalog.
func (p *Products) SetAvailability(note string) error {
	p.mu.Lock()
	p.cfg.AvailabilityNote = note
	cfg := *p.cfg
	p.mu.Unlock()
	return writeProductConfig(p.path, &cfg)
}

func writeProductConfig(path string, cfg *ProductConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create product config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal product config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Watch reloads the catalog when the file changes on disk (external edits).
// Blocks until ctx is cancelled.
func (p *Products) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files, which drops file-level watches.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watch product config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != p.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := p.Reload(); err != nil {
				slog.Warn("product config reload failed", "error", err)
				continue
			}
			slog.Info("product config reloaded", "path", p.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("product config watcher error", "error", err)
		}
	}
}
