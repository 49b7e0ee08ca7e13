package rewrite

func init() {
	Register(Format{
		Name: "mssql",
		Rules: []Rule{
			syslogDate(),
			sub("event-received-time", StageTimestamp, `"EventReceivedTime":"(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})"`, local(dateTimeLayout)),
			sub("event-time", StageTimestamp, `"EventTime":(\d{10})\b`, epochSeconds),
		},
		DefaultCount: 1000000,
	})
}
