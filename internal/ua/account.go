// Package ua implements C10/C11: one SIP identity's registration state
// machine and call routing, plus the process-wide UA group that routes
// incoming requests and runs serial registration. Grounded on
// original_source/src/ua.c (the reference UA lifecycle) and
// original_source/modules/serreg/serreg.c (group-level failover), in
// teacher's idiom of a config-driven struct plus small, composable
// methods (cf. teacher's bridge/config.go / bridge/service.go).
package ua

import (
	"fmt"
	"strings"

	"sipagent/internal/config"
)

// Account is a thin, UA-facing view over config.Account: same fields,
// plus derived values (host/user split from the AOR) the registration
// client and dialer need directly.
type Account struct {
	config.Account
	User string
	Host string
}

// ParseAccount splits the AOR (sip:user[:pass]@host) into User/Host on
// top of config.ParseAccount's `;param` parsing.
func ParseAccount(line string) (*Account, error) {
	base, err := config.ParseAccount(line)
	if err != nil {
		return nil, err
	}
	return FromConfig(base)
}

// FromConfig builds an Account from an already-parsed config.Account
// (e.g. one returned by config.LoadAccounts), splitting its AOR into
// User/Host without re-parsing the `;param` line.
func FromConfig(base config.Account) (*Account, error) {
	a := &Account{Account: base}

	aor := strings.TrimPrefix(base.AOR, "sip:")
	aor = strings.TrimPrefix(aor, "sips:")
	at := strings.LastIndex(aor, "@")
	if at < 0 {
		return nil, fmt.Errorf("account: AOR %q has no host part", base.AOR)
	}
	userinfo, host := aor[:at], aor[at+1:]
	if idx := strings.Index(host, ";"); idx >= 0 {
		host = host[:idx]
	}
	user := userinfo
	if idx := strings.Index(userinfo, ":"); idx >= 0 {
		user = userinfo[:idx]
	}
	a.User, a.Host = user, host
	return a, nil
}

// RegHost is the host a REGISTER is sent to: the account's outbound
// proxy if configured, else the AOR host itself (spec §4.10).
func (a *Account) RegHost() string {
	if a.Outbound != "" {
		return a.Outbound
	}
	return a.Host
}
