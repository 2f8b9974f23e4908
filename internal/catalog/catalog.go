package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

const (
	metadataSuffix = ".metadata.json"
	servicesDir    = "services"
	providerMeta   = "_metadata.json"

	DefaultLimit = 100
)

// Check is one entry of a provider's check metadata file.
type Check struct {
	CheckID     string `json:"CheckID"`
	CheckTitle  string `json:"CheckTitle"`
	ServiceName string `json:"ServiceName,omitempty"`
	Severity    string `json:"Severity,omitempty"`
	Description string `json:"Description,omitempty"`
}

type Provider struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	CheckCount  int    `json:"check_count"`
}

type Filter struct {
	Search  string
	Service string
	Limit   int
	Offset  int
}

// Catalog reads checks from <root>/<provider>/services/**/<CheckID>.metadata.json.
// Checks are loaded once per provider and kept until Reload.
type Catalog struct {
	root   string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string][]Check
}

func New(root string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	logger.Info("check catalog initialized", "providers_dir", root)
	return &Catalog{root: root, logger: logger, cache: map[string][]Check{}}
}

func (c *Catalog) Root() string { return c.root }

// Reload drops every cached provider.
func (c *Catalog) Reload() {
	c.mu.Lock()
	c.cache = map[string][]Check{}
	c.mu.Unlock()
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func validProviderName(name string) bool {
	return name != "" && !skipName(name) && !strings.ContainsAny(name, `/\`) && name != ".."
}

// ListProviders returns every provider directory sorted by name.
func (c *Catalog) ListProviders() ([]Provider, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("providers directory does not exist", "providers_dir", c.root)
			return []Provider{}, nil
		}
		return nil, common.WrapError(err, "list providers")
	}

	out := make([]Provider, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || skipName(e.Name()) {
			continue
		}
		checks, err := c.load(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Provider{
			Name:        e.Name(),
			DisplayName: c.displayName(e.Name()),
			CheckCount:  len(checks),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Catalog) displayName(provider string) string {
	name := strings.ToUpper(provider)
	raw, err := os.ReadFile(filepath.Join(c.root, provider, providerMeta))
	if err != nil {
		return name
	}
	var meta struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.DisplayName == "" {
		return name
	}
	return meta.DisplayName
}

func (c *Catalog) ProviderExists(provider string) bool {
	if !validProviderName(provider) {
		return false
	}
	st, err := os.Stat(filepath.Join(c.root, provider))
	return err == nil && st.IsDir()
}

// ProviderNames lists provider names only, for error messages.
func (c *Catalog) ProviderNames() []string {
	providers, err := c.ListProviders()
	if err != nil {
		return nil
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return names
}

// GetChecks filters, sorts by CheckID and paginates. total counts matches before pagination.
func (c *Catalog) GetChecks(provider string, f Filter) (int, []Check, error) {
	if !validProviderName(provider) {
		return 0, []Check{}, nil
	}
	all, err := c.load(provider)
	if err != nil {
		return 0, nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	search := strings.ToLower(f.Search)

	matched := make([]Check, 0, len(all))
	for _, ch := range all {
		if f.Service != "" && !strings.EqualFold(ch.ServiceName, f.Service) {
			continue
		}
		if search != "" {
			hay := strings.ToLower(ch.CheckID + " " + ch.CheckTitle + " " + ch.Description)
			if !strings.Contains(hay, search) {
				continue
			}
		}
		matched = append(matched, ch)
	}

	total := len(matched)
	if f.Offset >= total {
		return total, []Check{}, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return total, matched[f.Offset:end], nil
}

func (c *Catalog) GetCheck(provider, checkID string) (*Check, error) {
	all, err := c.load(provider)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].CheckID == checkID {
			ch := all[i]
			return &ch, nil
		}
	}
	return nil, common.NotFound(fmt.Sprintf("Check '%s' not found for provider '%s'", checkID, provider))
}

// GetChecksForPrompt renders every check of provider as one line each.
func (c *Catalog) GetChecksForPrompt(provider string) (string, error) {
	all, err := c.load(provider)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "No checks found for provider: " + provider, nil
	}

	var b strings.Builder
	for i, ch := range all {
		if i > 0 {
			b.WriteByte('\n')
		}
		id := ch.CheckID
		if id == "" {
			id = "unknown"
		}
		title := ch.CheckTitle
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&b, "- %s: %s", id, title)

		var extra []string
		if ch.ServiceName != "" {
			extra = append(extra, "Service: "+ch.ServiceName)
		}
		if ch.Severity != "" {
			extra = append(extra, "Severity: "+ch.Severity)
		}
		if len(extra) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(extra, ", "))
		}
	}
	return b.String(), nil
}

// ValidateCheckIDs splits ids into known and unknown, keeping input order.
func (c *Catalog) ValidateCheckIDs(provider string, ids []string) (valid, invalid []string, err error) {
	all, err := c.load(provider)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]struct{}, len(all))
	for _, ch := range all {
		known[ch.CheckID] = struct{}{}
	}
	valid, invalid = []string{}, []string{}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid, nil
}

// load returns the cached checks for provider, reading them on first use.
// Unreadable or malformed metadata files are skipped.
func (c *Catalog) load(provider string) ([]Check, error) {
	if !validProviderName(provider) {
		return nil, nil
	}
	c.mu.RLock()
	cached, ok := c.cache[provider]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	dir := filepath.Join(c.root, provider, servicesDir)
	checks := []Check{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			c.logger.Warn("catalog walk error", "provider", provider, "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), metadataSuffix) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("catalog read failed", "provider", provider, "path", path, "error", err)
			return nil
		}
		var ch Check
		if err := json.Unmarshal(raw, &ch); err != nil {
			c.logger.Warn("catalog parse failed", "provider", provider, "path", path, "error", err)
			return nil
		}
		checks = append(checks, ch)
		return nil
	})
	if err != nil {
		return nil, common.WrapError(err, "load checks for "+provider)
	}
	sort.SliceStable(checks, func(i, j int) bool { return checks[i].CheckID < checks[j].CheckID })

	c.mu.Lock()
	c.cache[provider] = checks
	c.mu.Unlock()
	c.logger.Debug("catalog provider loaded", "provider", provider, "checks", len(checks))
	return checks, nil
}
