package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader produces a partial module -> key -> raw-value mapping that
// Manager.Initialize merges into a ResolvedConfig, later loaders
// overriding earlier ones (§4.4).
type Loader interface {
	// Load returns the values this loader can supply. Values may be
	// already in their declared Go type or raw strings requiring
	// ParseConfig, and a single Loader may mix both: Manager always routes
	// every value through Coerce, which is a no-op for already typed
	// values.
	Load(schemas map[string]Schema) (map[string]map[string]any, error)
}

// extensions tried against every candidate base path, in priority order.
// A bare (extensionless) candidate is tried last and decoded as INI.
var fileExtensions = []string{".json", ".yaml", ".yml", ".toml", ".ini", ""}

// FileLoader implements the §4.4 file loader: a fixed, ordered list of
// candidate paths (every extension of every base), each existing file
// decoded, with later candidates in the sort order overriding earlier ones
// per key (the Open Question's
// documented "live code" behaviour, preserved here as authoritative).
type FileLoader struct {
	AppName string
	Cwd     string
	Home    string
	// Override, when non-empty, replaces the whole candidate search with
	// this single file (the --CONFIG switch, §4.4).
	Override string
}

func (f FileLoader) candidates() []string {
	if f.Override != "" {
		return []string{f.Override}
	}

	bases := []string{
		filepath.Join("/etc", f.AppName, "config"),
		filepath.Join("/etc", f.AppName),
		filepath.Join(f.Cwd, "."+f.AppName),
		filepath.Join(f.Home, ".config", f.AppName),
		filepath.Join(f.Home, ".config", f.AppName, "config"),
	}

	var paths []string
	for _, base := range bases {
		for _, ext := range fileExtensions {
			paths = append(paths, base+ext)
		}
	}
	return paths
}

// Load decodes every existing candidate file, in sort order, merging
// sections so a later file's keys win over an earlier file's for the same
// (module, key) — last-writer-wins per key, first-found is irrelevant
// once more than one candidate exists.
func (f FileLoader) Load(_ map[string]Schema) (map[string]map[string]any, error) {
	merged := map[string]map[string]any{}
	nativeKeys := map[string]bool{} // "module.key" -> true if from a native-typed file

	for _, path := range f.candidates() {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		decoded, err := decodeConfigFile(path)
		if err != nil {
			return nil, err
		}
		for module, values := range decoded.sections {
			dst, ok := merged[module]
			if !ok {
				dst = map[string]any{}
				merged[module] = dst
			}
			for key, value := range values {
				dst[key] = value
				if decoded.native {
					nativeKeys[module+"."+key] = true
				} else {
					delete(nativeKeys, module+"."+key)
				}
			}
		}
	}

	return merged, nil
}

// EnvLoader implements the §4.4 environment loader: exact match on
// "<module>_<key>" or bare "<key>", then a case-insensitive match where
// each '_'/'-' in the candidate name may correspond to either character
// in the environment variable's name. First match wins.
type EnvLoader struct {
	// Environ is injectable for tests; defaults to os.Environ() when nil.
	Environ func() []string
}

func (e EnvLoader) environ() []string {
	if e.Environ != nil {
		return e.Environ()
	}
	return os.Environ()
}

func (e EnvLoader) Load(schemas map[string]Schema) (map[string]map[string]any, error) {
	env := parseEnviron(e.environ())

	result := map[string]map[string]any{}
	for module, schema := range schemas {
		for key := range schema {
			value, found := lookupEnvLike(env, module, key)
			if !found {
				continue
			}
			if result[module] == nil {
				result[module] = map[string]any{}
			}
			result[module][key] = value
		}
	}
	return result, nil
}

// CLILoader implements the §4.4 CLI switch loader: "--KEY value" or
// "--KEY=value", same matching rules as EnvLoader but against parsed
// flags. argv should be the program's arguments without argv[0].
type CLILoader struct {
	Argv []string
}

func (c CLILoader) Load(schemas map[string]Schema) (map[string]map[string]any, error) {
	flags := parseCLIFlags(c.Argv)

	result := map[string]map[string]any{}
	for module, schema := range schemas {
		for key := range schema {
			value, found := lookupEnvLike(flags, module, key)
			if !found {
				continue
			}
			if result[module] == nil {
				result[module] = map[string]any{}
			}
			result[module][key] = value
		}
	}
	return result, nil
}

// parseEnviron turns "NAME=value" pairs into a name->value map.
func parseEnviron(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			continue
		}
		out[pair[:idx]] = pair[idx+1:]
	}
	return out
}

// parseCLIFlags parses the kernel's small CLI grammar: "--KEY value" and
// "--KEY=value". Flags not starting with "--" are ignored (positional
// arguments are not part of this spec). This hand-rolled scan exists
// because the flag set is not known until each module's schema is
// registered — pflag.FlagSet requires every flag to be declared before
// Parse is called, which fits the kernel's two *static* reserved flags
// (--CONFIG, --env-file, parsed separately via pflag in bootstrap
// options resolution) but not this fully dynamic, per-schema case.
func parseCLIFlags(argv []string) map[string]string {
	out := map[string]string{}
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		body := arg[2:]
		if eq := strings.IndexByte(body, '='); eq >= 0 {
			out[body[:eq]] = body[eq+1:]
			continue
		}
		if i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
			out[body] = argv[i+1]
			i++
		} else {
			out[body] = "true"
		}
	}
	return out
}

// lookupEnvLike implements the shared env/CLI matching rule: exact match
// on "<module>_<key>" or bare "<key>", then a case-insensitive match
// where '_'/'-' are interchangeable, first match wins.
func lookupEnvLike(source map[string]string, module, key string) (string, bool) {
	moduleKey := module + "_" + key

	if v, ok := source[moduleKey]; ok {
		return v, true
	}
	if v, ok := source[key]; ok {
		return v, true
	}

	names := make([]string, 0, len(source))
	for name := range source {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, candidate := range []string{moduleKey, key} {
		for _, name := range names {
			if fuzzyNameEqual(candidate, name) {
				return source[name], true
			}
		}
	}
	return "", false
}

// fuzzyNameEqual reports whether a and b are equal case-insensitively,
// treating '_' and '-' as interchangeable in either string.
func fuzzyNameEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	norm := func(r byte) byte {
		if r == '-' {
			return '_'
		}
		return r
	}
	al, bl := strings.ToLower(a), strings.ToLower(b)
	for i := 0; i < len(al); i++ {
		if norm(al[i]) != norm(bl[i]) {
			return false
		}
	}
	return true
}
