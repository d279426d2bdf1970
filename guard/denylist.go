package guard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed denylists/*.yaml
var denylistFS embed.FS

// Scope separates the user's special folders from system roots.
// Create, Copy and Execute only refuse destinations that are system roots.
type Scope string

// Entry scopes.
const (
	ScopeUser   Scope = "user"
	ScopeSystem Scope = "system"
)

// Entry is one protected root.
type Entry struct {
	Path  string `yaml:"path"`
	Scope Scope  `yaml:"scope"`
}

// denylistFile is the on-disk shape of an embedded or user-supplied list.
type denylistFile struct {
	Platform        string  `yaml:"platform"`
	CaseInsensitive bool    `yaml:"case_insensitive"`
	Entries         []Entry `yaml:"entries"`
}

// Denylist is an immutable, platform-specific set of protected roots.
// Entries are stored canonicalized so the guard compares like with like.
type Denylist struct {
	platform        string
	caseInsensitive bool
	entries         []Entry
}

// SupportedPlatforms lists the platforms with an embedded denylist.
func SupportedPlatforms() []string {
	return []string{"darwin", "linux", "windows"}
}

// LoadDenylist loads the embedded denylist for platform and expands "~"
// against home. An empty platform selects the running OS.
func LoadDenylist(platform, home string) (*Denylist, error) {
	if platform == "" {
		platform = goruntime.GOOS
	}
	data, err := denylistFS.ReadFile("denylists/" + platform + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no denylist for platform %q", platform)
	}
	return ParseDenylist(data, home)
}

// DefaultDenylist loads the running OS's denylist for the current user.
func DefaultDenylist() (*Denylist, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return LoadDenylist("", home)
}

// ParseDenylist parses a denylist document.
func ParseDenylist(data []byte, home string) (*Denylist, error) {
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid denylist: %w", err)
	}
	if f.Platform == "" {
		return nil, fmt.Errorf("invalid denylist: platform is required")
	}
	return NewDenylist(f.Platform, f.CaseInsensitive, home, f.Entries)
}

// NewDenylist builds a denylist from explicit entries. Tests use it to
// supply synthetic lists.
func NewDenylist(platform string, caseInsensitive bool, home string, entries []Entry) (*Denylist, error) {
	d := &Denylist{
		platform:        platform,
		caseInsensitive: caseInsensitive,
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return nil, fmt.Errorf("denylist entry %d: empty path", i)
		}
		switch e.Scope {
		case ScopeUser, ScopeSystem:
		case "":
			e.Scope = ScopeSystem
		default:
			return nil, fmt.Errorf("denylist entry %d: unknown scope %q", i, e.Scope)
		}
		p, err := expandHome(e.Path, home)
		if err != nil {
			return nil, fmt.Errorf("denylist entry %d: %w", i, err)
		}
		d.entries = append(d.entries, Entry{Path: d.canonicalEntry(p), Scope: e.Scope})
	}
	return d, nil
}

// With returns a copy of d with extra entries appended. d is unchanged.
func (d *Denylist) With(home string, extra ...Entry) (*Denylist, error) {
	merged := make([]Entry, 0, len(d.entries)+len(extra))
	merged = append(merged, d.entries...)
	merged = append(merged, extra...)
	return NewDenylist(d.platform, d.caseInsensitive, home, merged)
}

// Platform returns the platform the list was built for.
func (d *Denylist) Platform() string { return d.platform }

// CaseInsensitive reports whether paths are compared case-folded.
func (d *Denylist) CaseInsensitive() bool { return d.caseInsensitive }

// Entries returns a copy of the canonical entries.
func (d *Denylist) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of entries.
func (d *Denylist) Len() int { return len(d.entries) }

// canonicalEntry resolves an entry the same way candidates are resolved.
// Entries that do not exist on this host are kept in cleaned form; a list
// for another platform is only cleaned.
func (d *Denylist) canonicalEntry(p string) string {
	if d.platform == goruntime.GOOS {
		if resolved, err := resolve(p); err == nil {
			p = resolved
		} else if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	return d.normalize(filepath.Clean(p))
}

func (d *Denylist) normalize(p string) string {
	if d.caseInsensitive {
		// Casers are stateful and must not be shared across goroutines.
		return cases.Fold().String(p)
	}
	return p
}

func expandHome(p, home string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	if home == "" {
		return "", fmt.Errorf("%s needs a home directory", p)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, filepath.FromSlash(p[2:])), nil
}
