package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/algohub/algohub/internal/manspider"
	"github.com/algohub/algohub/internal/model"
)

// SpiderMode is a flavor of the manspider crawl
type SpiderMode struct {
	Name       string
	Category   model.Category
	Output     string // file name of the normalized findings
	Extensions []string
	Patterns   []string // content patterns, empty lists files only
	Threads    int
	MaxSize    string
}

var StandardSpider = SpiderMode{
	Name:     "standard",
	Category: model.CategoryManSpiderStandard,
	Output:   model.FileManspiderFiles,
	Extensions: []string{
		"pfx", "p12", "pkcs12", "pem", "key", "crt", "cer", "csr", "jks", "keystore",
		"keys", "der", "json", "xml", "ini", "ps1", "bat", "dll", "dmp", "vbs",
		"txt", "log", "config", "conf", "kdbx",
	},
	Threads: 20,
	MaxSize: "100M",
}

var CredsSpider = SpiderMode{
	Name:     "creds",
	Category: model.CategoryManSpiderCreds,
	Output:   model.FileManspiderCreds,
	Extensions: []string{
		"docx", "xlsx", "pdf", "txt", "log", "ini", "xml", "pem", "kdbx", "pfx",
		"cred", "key", "conf", "config", "json", "bat", "ps1", "psd1", "psm1", "vbs",
	},
	Patterns: credPatterns,
	Threads:  100,
	MaxSize:  "10M",
}

func SpiderModes() []SpiderMode {
	return []SpiderMode{StandardSpider, CredsSpider}
}

func SpiderModeByName(name string) (SpiderMode, error) {
	for _, m := range SpiderModes() {
		if m.Name == name {
			return m, nil
		}
	}
	return SpiderMode{}, fmt.Errorf("%w: unknown manspider mode %q", model.ErrInvalidConfig, name)
}

// Args returns manspider's command line for a crawl of cidr
func (m SpiderMode) Args(cidr string, creds model.Credentials) []string {
	args := []string{cidr, "-e"}
	args = append(args, m.Extensions...)
	if len(m.Patterns) > 0 {
		args = append(args, "-c")
		args = append(args, m.Patterns...)
	}
	return append(args,
		"-d", creds.Domain,
		"-u", creds.User,
		"-p", creds.Password,
		"-n",
		"-t", strconv.Itoa(m.Threads),
		"-s", m.MaxSize,
	)
}

// Manspider crawls the shares of cidr in dir. The raw output is saved to
// manspider_raw_output.txt whatever the exit code is, then normalized into
// mode.Output with the parse trace in manspider_parse_debug.txt.
func (t Toolbox) Manspider(ctx context.Context, dir, cidr string, mode SpiderMode, creds model.Credentials) (manspider.Result, error) {
	if err := mkdir(dir); err != nil {
		return manspider.Result{}, err
	}
	args := append([]string{t.tools.ManspiderScript}, mode.Args(cidr, creds)...)
	res := t.run(ctx, "manspider", t.tools.ManspiderPython, dir, t.tools.ManspiderTimeout, args...)
	if ctx.Err() != nil {
		return manspider.Result{}, res.Err
	}
	if res.Err != nil {
		slog.WarnContext(ctx, "manspider failed, parsing its output anyway", "exit_code", res.ExitCode)
	}

	parsed, err := SaveSpiderOutput(dir, mode, res.Combined())
	return parsed, errors.Join(res.Err, err)
}

// SaveSpiderOutput writes raw output of manspider, its normalized findings
// and the parse trace to dir.
func SaveSpiderOutput(dir string, mode SpiderMode, raw string) (manspider.Result, error) {
	if err := os.WriteFile(filepath.Join(dir, model.FileManspiderRaw), []byte(raw), 0o644); err != nil {
		return manspider.Result{}, fmt.Errorf("saving manspider output: %w", err)
	}

	parsed := manspider.Parse(raw)

	var errs []error
	if err := writeJSONIndent(filepath.Join(dir, mode.Output), parsed.Hosts, "  "); err != nil {
		errs = append(errs, err)
	}
	if err := writeTrace(filepath.Join(dir, model.FileManspiderTrace), parsed); err != nil {
		errs = append(errs, err)
	}
	return parsed, errors.Join(errs...)
}

func writeTrace(path string, res manspider.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing parse trace: %w", err)
	}
	if err := manspider.WriteTrace(f, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing parse trace: %w", err)
	}
	return f.Close()
}

// credPatterns are the content patterns of the credentials hunt
var credPatterns = []string{
	"password", "Password", "PASSWORD", "passwd", "Passwd", "PASSWD", "passw", "Passw",
	"PASSW", "pass", "Pass", "PASS", "pwd", "Pwd", "PWD", "pswd",
	"pword", "motdepasse", "mot_de_passe", "mot-de-passe", "mdp", "passe", "password:", "password=",
	"password =", "passwd:", "passwd=", "passwd =", "pass:", "pass=", "pass =", "pwd:",
	"pwd=", "pwd =", "userpassword", "user_password", "user-password", "adminpassword", "admin_password", "admin-password",
	"rootpassword", "root_password", "root-password", "dbpassword", "db_password", "database_password", "sqlpassword", "sql_password",
	"apipassword", "api_password", "servicepassword", "service_password", "svc_password", "credential", "credentials", "Credential",
	"Credentials", "cred", "creds", "Cred", "Creds", "auth", "Auth", "authentication",
	"Authentication", "login", "Login", "logon", "Logon", "username", "user", "Username",
	"User", "secret", "Secret", "SECRET", "secrets", "Secrets", "key", "Key",
	"KEY", "keys", "Keys", "KEYS", "privatekey", "private_key", "private-key", "apikey",
	"api_key", "api-key", "token", "Token", "TOKEN", "access_token", "accesstoken", "bearer",
	"Bearer", "admin", "Admin", "ADMIN", "administrator", "Administrator", "root", "Root",
	"ROOT", "sudo", "sa", "sysadmin", "domainadmin", "domain_admin", "ldap", "LDAP",
	"ldap_password", "ad", "AD", "ad_password", "smtp", "SMTP", "smtp_password", "ftp",
	"FTP", "ftp_password", "ssh", "SSH", "ssh_password", "rdp", "RDP", "rdp_password",
	"vpn", "VPN", "vpn_password", "sql", "SQL", "mysql", "postgres", "oracle",
	"database", "Database", "db", "DB", "connectionstring", "connection_string", "dsn", "DSN",
	"config", "Config", "configuration", "settings", "Settings", "backup", "Backup", "bak",
	"old", "Old", "copy", "certificate", "cert", "Cert", "pfx", "PFX",
	"p12", "P12", "hash", "Hash", "HASH", "ntlm", "NTLM", "lm",
	"LM", "encrypted", "cipher", "API_KEY", "API_PASSWORD", "DB_PASSWORD", "DATABASE_PASSWORD", "ADMIN_PASSWORD",
	"ROOT_PASSWORD", "SECRET_KEY", "account", "Account", "compte", "identifiant", "utilisateur",
}
