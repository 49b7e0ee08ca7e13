package rewrite

import (
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/values"
)

// reserved marks private traffic and is never replaced
const reserved = "Reserved"

func country(old string, b *domain.Bundle) string {
	if old == reserved || b.Country == "" {
		return old
	}
	return b.Country
}

func init() {
	Register(Format{
		Name: "fortigate",
		Rules: []Rule{
			sub("device", StageAddress, `^(?:<\d+>)?(?:[A-Z][a-z]{2}\s+\d{1,2} \d{2}:\d{2}:\d{2} )?(`+ipExpr+`) date=`, address(domain.RoleDevice)),
			sub("srcip", StageAddress, `\bsrcip=(`+ipExpr+`)`, address(domain.RoleSrc)),
			sub("dstip", StageAddress, `\bdstip=(`+ipExpr+`)`, address(domain.RoleDst)),
			sub("tranip", StageAddress, `\btranip=(`+ipExpr+`)`, address(domain.RoleNAT)),

			syslogDate(),
			sub("date", StageTimestamp, `\bdate=(\d{4}-\d{2}-\d{2})`, local("2006-01-02")),
			sub("time", StageTimestamp, `\btime=(\d{2}:\d{2}:\d{2})`, local("15:04:05")),
			sub("tz", StageTimestamp, `\btz="([+-]\d{4})"`, local("-0700")),
			sub("eventtime", StageTimestamp, `\beventtime=(\d+)`, epoch),

			sub("user", StageIdentity, `\buser="([^"]*)"`, username),

			sub("srccountry", StageCategorical, `\bsrccountry="([^"]*)"`, country),
			sub("srcport", StageCategorical, `\bsrcport=(\d+)`, number("srcport")),
			sub("dstport", StageCategorical, `\bdstport=(\d+)`, number("dstport")),
			sub("crscore", StageCategorical, `\bcrscore=(\d+)`, number("crscore")),
			sub("crlevel", StageCategorical, `\bcrlevel="([^"]*)"`, tier("crlevel")),
		},
		FixedRoles:   []string{domain.RoleDevice},
		Roles:        []string{domain.RoleSrc, domain.RoleDst, domain.RoleNAT},
		FixedCountry: true,
		Numbers: map[string]values.Range{
			"srcport": values.Port,
			"dstport": values.Port,
			"crscore": values.Score,
		},
		Tiers:        []string{"crlevel"},
		DefaultCount: 1000000,
	})
}
