package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-chatmark/internal/config"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

const browserVersionTimeout = 5 * time.Second

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string      `json:"status"` // "ready", "warnings", "errors"
	Config   configInfo  `json:"config"`
	Browser  browserInfo `json:"browser"`
	Auth     authInfo    `json:"auth"`
	Storage  storageInfo `json:"storage"`
	Env      envInfo     `json:"environment"`
	Warnings []string    `json:"warnings,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

// configInfo describes the loaded configuration.
type configInfo struct {
	Path       string `json:"path,omitempty"` // empty when running on defaults
	Valid      bool   `json:"valid"`
	Typesetter string `json:"typesetter"`
	APIURL     string `json:"api_url,omitempty"`
}

// browserInfo holds Chrome/Chromium detection results.
type browserInfo struct {
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Version  string `json:"version,omitempty"`
	Required bool   `json:"required"` // the browser KaTeX typesetter cannot run without it
}

// authInfo describes the credentials ask and serve will use.
type authInfo struct {
	Method       string    `json:"method"` // "api-key", "token" or "none"
	TokenExpires time.Time `json:"token_expires,omitzero"`
}

// storageInfo holds data directory checks.
type storageInfo struct {
	DataDir  string `json:"data_dir"`
	Writable bool   `json:"writable"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	NoSandbox     string `json:"rod_no_sandbox,omitempty"`
	BrowserBin    string `json:"rod_browser_bin,omitempty"`
}

// runDoctor checks everything chatmark needs and prints a report.
// It fails with ErrNotReady when any check reports an error.
func runDoctor(ctx context.Context, args []string, env *Environment) error {
	flags, _, err := parseDoctorFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	result := diagnose(ctx, flags.common, env)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteOutput, err)
		}
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == statusErrors {
		return fmt.Errorf("%w: %d problem(s) found", ErrNotReady, len(result.Errors))
	}
	return nil
}

// diagnose performs all checks. An invalid config is reported and the
// remaining checks run against the defaults.
func diagnose(ctx context.Context, common commonFlags, env *Environment) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  env.Getenv("ROD_NO_SANDBOX"),
			BrowserBin: env.Getenv("ROD_BROWSER_BIN"),
		},
	}

	a, err := newApp(common, env)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		cfg := config.DefaultConfig()
		cfg.ApplyEnv(env.Getenv)
		a = &app{cfg: cfg, logger: newLogger(io.Discard, false), env: env}
	} else {
		result.Config.Valid = true
		result.Config.Path = a.configPath
	}
	result.Config.Typesetter = a.typesetterName()
	result.Config.APIURL = a.cfg.API.URL

	checkBrowser(ctx, a, result)
	checkAuth(a, result)
	checkStorage(a, result)
	checkContainer(result)

	switch {
	case len(result.Errors) > 0:
		result.Status = statusErrors
	case len(result.Warnings) > 0:
		result.Status = statusWarnings
	}
	return result
}

// checkBrowser detects Chrome/Chromium. A missing browser is an error with
// the browser KaTeX typesetter and a warning otherwise, since only login
// needs it.
func checkBrowser(ctx context.Context, a *app, result *doctorResult) {
	result.Browser.Required = a.katex()

	report := func(msg string) {
		if result.Browser.Required {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg+" ('chatmark login' will not work)")
		}
	}

	path := result.Env.BrowserBin
	if path == "" {
		var found bool
		if path, found = launcher.LookPath(); !found {
			report("Chrome/Chromium not found. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}
	if _, err := os.Stat(path); err != nil {
		report(fmt.Sprintf("Chrome not found at %s", path))
		return
	}
	result.Browser.Found = true
	result.Browser.Path = path

	ctx, cancel := context.WithTimeout(ctx, browserVersionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output() // #nosec G204 -- path is the user's browser
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Could not get Chrome version: %v", err))
		return
	}
	result.Browser.Version = strings.TrimSpace(string(out))
}

// checkAuth reports which credentials requests will carry.
func checkAuth(a *app, result *doctorResult) {
	if a.cfg.API.URL == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("api.url is not set; ask and serve need it (or %s)", config.EnvAPIURL))
	}

	if a.cfg.API.Key != "" {
		result.Auth.Method = "api-key"
		return
	}

	tokens, err := a.tokenManager()
	if err != nil {
		result.Auth.Method = "none"
		result.Errors = append(result.Errors, fmt.Sprintf("Token file: %v", err))
		return
	}
	if !tokens.Valid() {
		result.Auth.Method = "none"
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("No valid token; run 'chatmark login' or set %s", config.EnvAPIKey))
		return
	}
	result.Auth.Method = "token"
	result.Auth.TokenExpires = tokens.ExpiresAt()
}

// checkStorage verifies the data directory can be created and written.
func checkStorage(a *app, result *doctorResult) {
	dir := a.cfg.DataDir()
	result.Storage.DataDir = dir

	probe := filepath.Join(dir, ".doctor")
	err := os.MkdirAll(dir, dirPermissions)
	if err == nil {
		err = os.WriteFile(probe, []byte("ok"), 0o600)
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Data directory not writable: %s", dir))
		return
	}
	_ = os.Remove(probe)
	result.Storage.Writable = true
}

// checkContainer warns when Chrome will likely need its sandbox disabled.
func checkContainer(result *doctorResult) {
	result.Env.Container, result.Env.ContainerHint = isContainer()
	if result.Env.Container && result.Browser.Found && result.Env.NoSandbox != "1" {
		result.Warnings = append(result.Warnings,
			"Container detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// isContainer detects a container runtime.
// The hint names the signal that matched.
func isContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "/.dockerenv"
	}
	if v := os.Getenv("container"); v != "" {
		return true, "container=" + v
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "chatmark doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration")
	switch {
	case !r.Config.Valid:
		fmt.Fprintln(w, "  [ERROR] Invalid (defaults used below)")
	case r.Config.Path != "":
		fmt.Fprintf(w, "  [OK] Loaded from %s\n", r.Config.Path)
	default:
		fmt.Fprintln(w, "  [OK] Defaults (no config file found)")
	}
	fmt.Fprintf(w, "  [OK] Typesetter: %s\n", r.Config.Typesetter)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Browser.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Browser.Path)
		if r.Browser.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Browser.Version)
		}
	} else if r.Browser.Required {
		fmt.Fprintln(w, "  [ERROR] Not found")
	} else {
		fmt.Fprintln(w, "  [WARN] Not found")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Credentials")
	switch r.Auth.Method {
	case "api-key":
		fmt.Fprintln(w, "  [OK] API key")
	case "token":
		fmt.Fprintf(w, "  [OK] Token valid until %s\n", r.Auth.TokenExpires.Format(time.RFC1123))
	default:
		fmt.Fprintln(w, "  [WARN] None")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Storage")
	if r.Storage.Writable {
		fmt.Fprintf(w, "  [OK] %s: writable\n", r.Storage.DataDir)
	} else {
		fmt.Fprintf(w, "  [ERROR] %s: not writable\n", r.Storage.DataDir)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", e)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
