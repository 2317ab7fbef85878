package probe

import (
	"regexp"
	"strings"
)

// Login surface catalogue. Rules run in the order listed and the first match
// wins; reordering them changes classification results, so any change here
// needs the table tests updated alongside. Inputs are the final URL, the
// flattened header blob and the body sample, all matched case-insensitively.
//
// Order: OWA, Rocket.Chat, ERPNext/Frappe, Nextcloud, Proxmox (PMG, PBS,
// PVE), Zabbix, OPNsense, CipherMail, then the generic password-form /
// login-page fallbacks.

const (
	LoginOWA          = "OWA"
	LoginRocketChat   = "RocketChat"
	LoginERPNext      = "ERPNext"
	LoginNextcloud    = "Nextcloud"
	LoginProxmoxPMG   = "ProxmoxPMG"
	LoginProxmoxPBS   = "ProxmoxPBS"
	LoginProxmoxPVE   = "ProxmoxPVE"
	LoginZabbix       = "Zabbix"
	LoginOPNsense     = "OPNsense"
	LoginCipherMail   = "CipherMail"
	LoginPasswordForm = "PasswordForm"
	LoginPage         = "LoginPage"
)

var (
	rePasswordInput = regexp.MustCompile(`type\s*=\s*["']?password`)
	reOWABody       = regexp.MustCompile(`outlook web app|owa/auth|\boutlook\b`)
	reFrappeBody    = regexp.MustCompile(`erpnext|frappe\.boot|frappe\.csrf_token|/api/method/frappe\.|\bfrappe\b`)
)

type loginInput struct {
	url     string // final URL, lowercased
	headers string // header blob, lowercased
	body    string // body sample, lowercased
}

func (in loginInput) hasPasswordInput() bool { return rePasswordInput.MatchString(in.body) }

type loginRule struct {
	name  string
	match func(in loginInput) bool
}

var loginCatalogue = []loginRule{
	{LoginOWA, func(in loginInput) bool {
		if strings.Contains(in.url, "/owa/") || strings.Contains(in.url, "errorfe.aspx") {
			return true
		}
		return reOWABody.MatchString(in.body)
	}},
	{LoginRocketChat, func(in loginInput) bool {
		strong := strings.Contains(in.body, "rocket.chat") ||
			strings.Contains(in.body, "__meteor_runtime_config__")
		if strong {
			return true
		}
		weak := strings.Contains(in.body, "meteor") ||
			strings.Contains(in.body, "rc-root") ||
			strings.Contains(in.body, "rocketchat")
		urlHint := strings.Contains(in.url, "/home") || strings.Contains(in.url, "/login")
		return weak && urlHint
	}},
	{LoginERPNext, func(in loginInput) bool {
		if !reFrappeBody.MatchString(in.body) {
			return false
		}
		urlHint := strings.Contains(in.url, "/login") || strings.Contains(in.url, "/desk")
		headerHint := strings.Contains(in.headers, "x-frappe-") || strings.Contains(in.headers, "sid=")
		return urlHint || headerHint
	}},
	{LoginNextcloud, func(in loginInput) bool {
		return strings.Contains(in.body, "nextcloud") ||
			strings.Contains(in.body, "body-login") ||
			strings.Contains(in.body, "nc-login")
	}},
	{LoginProxmoxPMG, func(in loginInput) bool {
		return strings.Contains(in.url, "/pmg") && strings.Contains(in.body, "proxmox mail gateway")
	}},
	{LoginProxmoxPBS, func(in loginInput) bool {
		hint := strings.Contains(in.url, "/pbs") || strings.Contains(in.url, ":8007")
		return hint && strings.Contains(in.body, "proxmox backup server")
	}},
	{LoginProxmoxPVE, func(in loginInput) bool {
		hint := strings.Contains(in.url, "/pve2/") || strings.Contains(in.url, ":8006")
		return hint && (strings.Contains(in.body, "proxmox virtual environment") || strings.Contains(in.body, "proxmox ve"))
	}},
	{LoginZabbix, func(in loginInput) bool {
		return strings.Contains(in.body, "zabbix") && in.hasPasswordInput()
	}},
	{LoginOPNsense, func(in loginInput) bool {
		return strings.Contains(in.body, "opnsense") && in.hasPasswordInput()
	}},
	{LoginCipherMail, func(in loginInput) bool {
		return (strings.Contains(in.body, "ciphermail") || strings.Contains(in.body, "djigzo")) && in.hasPasswordInput()
	}},
	{LoginPasswordForm, func(in loginInput) bool {
		return in.hasPasswordInput()
	}},
	{LoginPage, func(in loginInput) bool {
		if !strings.Contains(in.body, "login") {
			return false
		}
		return strings.Contains(in.body, "<form") ||
			strings.Contains(in.body, "username") ||
			strings.Contains(in.body, "email") ||
			strings.Contains(in.body, "sign in")
	}},
}

// classify runs the catalogue against one response. A target's login_rule
// hint, when it names a known rule, is tried before the catalogue so a known
// deployment keeps its classification even when an earlier rule would also
// match.
func classify(hint *string, finalURL, headers, body string) (bool, *string) {
	in := loginInput{
		url:     strings.ToLower(finalURL),
		headers: strings.ToLower(headers),
		body:    strings.ToLower(body),
	}

	if hint != nil {
		for _, r := range loginCatalogue {
			if strings.EqualFold(r.name, *hint) && r.match(in) {
				name := r.name
				return true, &name
			}
		}
	}
	for _, r := range loginCatalogue {
		if r.match(in) {
			name := r.name
			return true, &name
		}
	}
	return false, nil
}
