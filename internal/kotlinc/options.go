package kotlinc

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultAPILevel is the Android API level used for the platform jar and
// d8 --min-api when none is configured.
const DefaultAPILevel = 21

// kotlinStdlibJar is resolved relative to the kotlinc home.
var kotlinStdlibJar = filepath.Join("lib", "kotlin-stdlib.jar")

// baseKotlincArgs are passed on every compile.
var baseKotlincArgs = []string{"-no-reflect", "-jvm-target", "1.8", "-Xno-param-assertions", "-nowarn"}

// BuildRequest holds everything BuildOptions needs.
type BuildRequest struct {
	// Files is the change set (absolute Kotlin paths).
	Files []string

	ClassDir  string
	DexOutDir string

	KotlincHome string
	DefaultJar  string
	APILevel    int

	// ModulesCacheDir holds shared module jars (*.jar, non-recursive).
	ModulesCacheDir string

	// InputDir is the project root; uni_modules/*/utssdk/app-android/libs/*.jar
	// under it are added to the classpath.
	InputDir string

	// Now stamps the module name.
	Now time.Time
}

// BuildOptions assembles compiler arguments for one cycle.
//
// The module name carries a millisecond timestamp so consecutive cycles never
// share an incremental-compiler identity.
func BuildOptions(req BuildRequest) Options {
	api := req.APILevel
	if api <= 0 {
		api = DefaultAPILevel
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	classpath := Classpath(req)
	moduleName := "main-" + strconv.FormatInt(now.UnixMilli(), 10)

	args := append([]string{}, baseKotlincArgs...)
	args = append(args,
		"-d", req.ClassDir,
		"-cp", strings.Join(classpath, string(os.PathListSeparator)),
		"-module-name", moduleName,
	)
	if req.KotlincHome != "" {
		args = append(args, "-kotlin-home", req.KotlincHome)
	}
	args = append(args, req.Files...)

	return Options{
		Kotlinc: KotlincOptions{
			Args:        args,
			Files:       append([]string{}, req.Files...),
			Classpath:   classpath,
			OutDir:      req.ClassDir,
			KotlincHome: req.KotlincHome,
			ModuleName:  moduleName,
		},
		D8: D8Options{
			Args:     D8Args(api),
			ClassDir: req.ClassDir,
			OutDir:   req.DexOutDir,
		},
	}
}

// D8Args returns the fixed bytecode-lowering arguments.
func D8Args(apiLevel int) []string {
	return []string{"--min-api", strconv.Itoa(apiLevel), "--no-desugaring", "--debug"}
}

// Classpath is the class output dir, the baseline jars, shared module jars
// and project module jars, in that order, without duplicates.
func Classpath(req BuildRequest) []string {
	var cp []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if p == "" {
			return
		}
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		cp = append(cp, p)
	}

	add(req.ClassDir)
	add(req.DefaultJar)
	if req.KotlincHome != "" {
		add(filepath.Join(req.KotlincHome, kotlinStdlibJar))
	}
	if req.ModulesCacheDir != "" {
		for _, jar := range globSorted(filepath.Join(req.ModulesCacheDir, "*.jar")) {
			add(jar)
		}
	}
	if req.InputDir != "" {
		for _, jar := range globSorted(filepath.Join(req.InputDir, "uni_modules", "*", "utssdk", "app-android", "libs", "*.jar")) {
			add(jar)
		}
	}
	return cp
}

func globSorted(pattern string) []string {
	// Glob only fails on malformed patterns (e.g. a '[' in a configured
	// directory); such a directory contributes no jars.
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}
