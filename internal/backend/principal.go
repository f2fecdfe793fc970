package backend

import (
	"os"
	"os/user"
	"strconv"
)

var adminGroups = map[string]bool{"wheel": true, "sudo": true}

// Principal is the user taskctl runs as.
type Principal struct {
	UID        int
	Name       string
	Privileged bool
}

func (p Principal) Root() bool { return p.UID == 0 }

// CurrentPrincipal resolves the calling user. Root, wheel and sudo members
// are privileged. Lookup failures leave only the uid check.
func CurrentPrincipal() Principal {
	p := Principal{UID: os.Getuid()}
	p.Privileged = p.UID == 0
	u, err := user.LookupId(strconv.Itoa(p.UID))
	if err != nil {
		return p
	}
	p.Name = u.Username
	if p.Privileged {
		return p
	}
	gids, err := u.GroupIds()
	if err != nil {
		return p
	}
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err == nil && adminGroups[g.Name] {
			p.Privileged = true
			break
		}
	}
	return p
}
