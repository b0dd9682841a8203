package flashercli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/kaptinlin/jsonschema"

	"qflasher/internal/domain"
)

// versionListSchema is the contract of `list --format json`.
const versionListSchema = `{
  "type": "object",
  "required": ["releases"],
  "properties": {
    "latest": {
      "anyOf": [{"type": "null"}, {"$ref": "#/$defs/version"}]
    },
    "releases": {
      "type": "array",
      "items": {"$ref": "#/$defs/version"}
    }
  },
  "$defs": {
    "version": {
      "type": "object",
      "required": ["version", "url", "sha256"],
      "properties": {
        "version": {"type": "string", "minLength": 1},
        "url": {"type": "string"},
        "sha256": {"type": "string"}
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func versionSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, compileErr = compiler.Compile([]byte(versionListSchema))
	})
	return compiledSchema, compileErr
}

// ParseVersionList validates and decodes the tool's list output.
func ParseVersionList(data []byte) (*domain.VersionList, error) {
	const op = "Flasher.ParseVersionList"

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewSubSystemError("flasher", op, domain.ErrParse, err.Error())
	}

	schema, err := versionSchema()
	if err != nil {
		return nil, fmt.Errorf("compile version schema: %w", err)
	}
	if result := schema.Validate(raw); !result.IsValid() {
		return nil, domain.NewSubSystemError("flasher", op, domain.ErrParse, fmt.Sprintf("%s", result.Error()))
	}

	var list domain.VersionList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, domain.NewSubSystemError("flasher", op, domain.ErrParse, err.Error())
	}
	if list.Releases == nil {
		list.Releases = []domain.VersionInfo{}
	}
	return &list, nil
}

// Newest returns list.Latest when the tool names one, otherwise the
// highest semantic version among the releases. Unparseable versions are
// ignored. Returns nil when nothing qualifies.
func Newest(list *domain.VersionList) *domain.VersionInfo {
	if list == nil {
		return nil
	}
	if list.Latest != nil {
		return list.Latest
	}

	var best *domain.VersionInfo
	var bestVer *semver.Version
	for i := range list.Releases {
		v, err := semver.NewVersion(strings.TrimPrefix(list.Releases[i].Version, "v"))
		if err != nil {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = &list.Releases[i], v
		}
	}
	return best
}

// SortedReleases returns the releases newest first. Versions that are not
// semantic versions sort last, in their original order.
func SortedReleases(list *domain.VersionList) []domain.VersionInfo {
	if list == nil {
		return nil
	}
	type entry struct {
		info domain.VersionInfo
		ver  *semver.Version
	}
	entries := make([]entry, len(list.Releases))
	for i, r := range list.Releases {
		v, _ := semver.NewVersion(strings.TrimPrefix(r.Version, "v"))
		entries[i] = entry{info: r, ver: v}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ver, entries[j].ver
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.GreaterThan(b)
		}
	})
	out := make([]domain.VersionInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info
	}
	return out
}

// ValidVersion reports whether v is "latest" or a semantic version.
func ValidVersion(v string) bool {
	if v == "latest" {
		return true
	}
	_, err := semver.NewVersion(strings.TrimPrefix(v, "v"))
	return err == nil
}
