package rewrite

import (
	"github.com/n0needt0/synthlog/internal/domain"
)

func init() {
	Register(Format{
		Name: "sonicwall",
		Rules: []Rule{
			sub("src", StageAddress, `\bsrc=(`+ipExpr+`)`, address(domain.RoleSrc)),
			sub("dst", StageAddress, `\bdst=(`+ipExpr+`)`, address(domain.RoleDst)),

			syslogDate(),
			sub("time", StageTimestamp, `\btime="(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})"`, local(dateTimeLayout)),
			sub("vp-time", StageTimestamp, `\bvp_time="(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) UTC"`, utc(dateTimeLayout)),

			sub("user", StageIdentity, `\buser="([^"]*)"`, username),
			sub("usr", StageIdentity, `\busr="([^"]*)"`, username),
		},
		Roles:             []string{domain.RoleSrc, domain.RoleDst},
		PerRecordIdentity: true,
		DefaultCount:      10000000,
	})
}
