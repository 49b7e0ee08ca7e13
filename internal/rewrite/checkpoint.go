package rewrite

import (
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/values"
)

func init() {
	Register(Format{
		Name: "checkpoint",
		Rules: []Rule{
			sub("src", StageAddress, `\bsrc:"(`+ipExpr+`)"`, address(domain.RoleSrc)),
			sub("dst", StageAddress, `\bdst:"(`+ipExpr+`)"`, address(domain.RoleDst)),

			sub("iso-time", StageTimestamp, `(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)`, utc(isoZuluLayout)),

			sub("source-port", StageCategorical, `\bs_port:"(\d+)"`, number("s_port")),
			sub("comment", StageCategorical, `\bcomment:"([^"]*)"`, token("comment")),
		},
		Roles:        []string{domain.RoleSrc, domain.RoleDst},
		Numbers:      map[string]values.Range{"s_port": values.Port},
		Tokens:       map[string]int{"comment": 12},
		DefaultCount: 1000000,
	})
}
