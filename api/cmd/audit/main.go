package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/irgordon/karidc/api/internal/adapters/document"
)

// finding is one audit point's verdict.
type finding struct {
	pass    bool
	warning bool
	message string
}

func pass(format string, args ...any) finding { return finding{pass: true, message: fmt.Sprintf(format, args...)} }
func fail(format string, args ...any) finding { return finding{message: fmt.Sprintf(format, args...)} }
func notice(format string, args ...any) finding {
	return finding{pass: true, warning: true, message: fmt.Sprintf(format, args...)}
}

func main() {
	fmt.Println("🔍 Karı domain controller: Running Configuration Posture Audit...")

	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️  Warning: No .env file found, checking system env vars...")
	}
	if !audit(os.Getenv, os.Stdout) {
		os.Exit(1)
	}
}

// audit prints every finding and reports whether the posture holds.
func audit(getenv func(string) string, out io.Writer) bool {
	findings := []finding{
		checkKeys(getenv("ENCRYPTION_KEY"), getenv("ENCRYPTION_KEYS_RETIRED")),
		checkDatabase(getenv("DATABASE_URL")),
		checkCORS(getenv("CORS_ALLOWED_ORIGINS")),
		checkHostName(getenv("KARIDC_HOST_NAME")),
		checkDomainFile(getenv("KARIDC_DOMAIN_FILE")),
		checkContentRoot(getenv("KARIDC_CONTENT_ROOT")),
	}

	ok := true
	for _, f := range findings {
		switch {
		case !f.pass:
			ok = false
			fmt.Fprintln(out, "❌ FAIL:", f.message)
		case f.warning:
			fmt.Fprintln(out, "⚠️  NOTICE:", f.message)
		default:
			fmt.Fprintln(out, "✅ PASS:", f.message)
		}
	}

	fmt.Fprintln(out, "--------------------------------------------------")
	if !ok {
		fmt.Fprintln(out, "🚨 VERDICT: CONFIGURATION POSTURE FAILED.")
		fmt.Fprintln(out, "Fix the errors above before attempting deployment.")
		return false
	}
	fmt.Fprintln(out, "🚀 VERDICT: CONFIGURATION POSTURE VALIDATED. Controller is ready for launch.")
	return true
}

// --- Audit Point 1: Encryption Key Entropy ---
func checkKeys(primary, retired string) finding {
	if !strongKey(primary) {
		return fail("ENCRYPTION_KEY must be exactly 64 hex characters with no repeated pattern (Current: %d)", len(primary))
	}
	for _, k := range strings.Split(retired, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if !strongKey(k) {
			return fail("ENCRYPTION_KEYS_RETIRED holds a malformed key")
		}
		if strings.EqualFold(k, primary) {
			return fail("ENCRYPTION_KEY is also listed as retired")
		}
	}
	return pass("Encryption key entropy meets 256-bit standards.")
}

func strongKey(k string) bool {
	b, err := hex.DecodeString(k)
	if err != nil || len(b) != 32 {
		return false
	}
	distinct := map[byte]bool{}
	for _, c := range b {
		distinct[c] = true
	}
	return len(distinct) > 8
}

// --- Audit Point 2: Database Credentials ---
func checkDatabase(url string) finding {
	switch {
	case url == "":
		return fail("DATABASE_URL must be set; without it model changes are lost on restart.")
	case strings.Contains(url, "dev_password"):
		return fail("DATABASE_URL is using default development credentials.")
	case strings.Contains(url, "sslmode=disable"):
		return notice("DATABASE_URL disables TLS to the database.")
	}
	return pass("Database URL does not use default credentials.")
}

// --- Audit Point 3: Strict CORS ---
func checkCORS(origins string) finding {
	if origins == "" {
		return fail("CORS_ALLOWED_ORIGINS must be set.")
	}
	for _, o := range strings.Split(origins, ",") {
		if strings.TrimSpace(o) == "*" {
			return fail("CORS_ALLOWED_ORIGINS must not contain a wildcard.")
		}
	}
	return pass("CORS origins are explicit.")
}

// --- Audit Point 4: Explicit host identity ---
func checkHostName(name string) finding {
	if name == "" {
		return notice("KARIDC_HOST_NAME is not set; no server will auto-start.")
	}
	return pass("Host identity is explicit (%s).", name)
}

// --- Audit Point 5: Declared model ---
func checkDomainFile(path string) finding {
	if path == "" {
		return notice("KARIDC_DOMAIN_FILE is not set; the domain starts empty.")
	}
	d, err := document.Builder{}.ReadDomainFile(path)
	if err != nil {
		return fail("domain document does not load: %v", err)
	}
	info, err := os.Stat(path)
	if err == nil && info.Mode().Perm()&0o002 != 0 {
		return fail("%s is world-writable.", path)
	}
	return pass("Domain document loads (%d server groups).", len(d.ServerGroups()))
}

// --- Audit Point 6: Content Store ---
func checkContentRoot(root string) finding {
	if root == "" {
		root = "/var/lib/karidc/content"
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		return notice("%s does not exist yet; it will be created on start.", root)
	case err != nil:
		return fail("content root: %v", err)
	case !info.IsDir():
		return fail("%s is not a directory.", root)
	case info.Mode().Perm()&0o002 != 0:
		return fail("%s is world-writable; deployment content could be swapped.", root)
	}
	return pass("Content root %s is private.", root)
}
