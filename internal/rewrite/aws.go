package rewrite

import (
	"github.com/n0needt0/synthlog/internal/domain"
)

func init() {
	prefix := syslogDate()
	prefix.Name = "syslog-prefix"
	prefix.Missing = func(line string, b *domain.Bundle) string {
		return b.Timestamp.Format(syslogLayout) + " console - " + line
	}

	Register(Format{
		Name: "aws",
		Rules: []Rule{
			sub("source-address", StageAddress, `sourceIPAddress":"([^"]*)"`, address(domain.RoleSource)),

			prefix,
			sub("creation-date", StageTimestamp, `"creationDate":"(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)"`, utc(isoZuluLayout)),
			sub("event-time", StageTimestamp, `"eventTime":"(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)"`, utc(isoZuluLayout)),

			sub("user-name", StageIdentity, `userName":"(\w+)"`, username),
			sub("user-arn", StageIdentity, `"arn":"arn:aws:iam::\d+:user/(\w+)`, username),
		},
		FixedRoles:   []string{domain.RoleSource},
		Locate:       domain.RoleSource,
		DefaultCount: 10000000,
	})
}
