package rewrite

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/n0needt0/synthlog/internal/corpus"
	"github.com/n0needt0/synthlog/internal/domain"
)

var (
	plus4 = time.FixedZone("", 4*3600)
	when  = time.Date(2015, time.June, 1, 10, 20, 30, 0, plus4)
)

func mustLookup(t testing.TB, name string) *Format {
	t.Helper()
	f, err := Lookup(name)
	if err != nil {
		t.Fatalf("Expected format %s, got %v", name, err)
	}
	return f
}

func bundleFor(f *Format, ts time.Time) *domain.Bundle {
	b := domain.NewBundle(ts)
	pool := []string{"198.51.100.1", "198.51.100.2", "198.51.100.3", "198.51.100.4"}
	roles := append(append([]string{}, f.FixedRoles...), f.Roles...)
	for i, r := range roles {
		b.Addresses[r] = pool[i]
	}
	b.Username = "tester_01"
	b.Country = "Japan"
	for k, r := range f.Numbers {
		b.Numbers[k] = r.Hi
	}
	for _, k := range f.Tiers {
		b.Tiers[k] = "medium"
	}
	for k, n := range f.Tokens {
		b.Tokens[k] = strings.Repeat("x", n)
	}
	return b
}

// timestampOccurrences checks that every timestamp in line renders the bundle instant
func timestampOccurrences(t testing.TB, f *Format, line string, b *domain.Bundle) int {
	t.Helper()
	n := 0
	for _, r := range f.Rules {
		if r.Stage != StageTimestamp {
			continue
		}
		for _, m := range r.Pattern.FindAllStringSubmatch(line, -1) {
			n++
			if want := r.Value(m[1], b); want != m[1] {
				t.Fatalf("%s: %s rule expected %q, got %q in %q", f.Name, r.Name, want, m[1], line)
			}
		}
	}
	return n
}

func corpusLines(t testing.TB, name string) []string {
	t.Helper()
	c, err := corpus.Load(name, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c.Lines()
}

func TestNames(t *testing.T) {
	got := strings.Join(Names(), ",")
	if got != "aws,checkpoint,fortigate,mssql,sonicwall" {
		t.Errorf("Expected the five formats, got %s", got)
	}
	if _, err := Lookup("paloalto"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register(Format{Name: "mssql"})
}

func TestTimestampConsistency(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f := mustLookup(t, name)
			b := bundleFor(f, when)
			for _, line := range corpusLines(t, name) {
				out := f.Rewrite(line, b)
				if timestampOccurrences(t, f, out, b) == 0 {
					t.Errorf("Expected at least one timestamp in %q", out)
				}
			}
		})
	}
}

func TestRewriteIsStable(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f := mustLookup(t, name)
			b := bundleFor(f, when)
			for _, line := range corpusLines(t, name) {
				once := f.Rewrite(line, b)
				if twice := f.Rewrite(once, b); twice != once {
					t.Errorf("Expected re-application to keep %q, got %q", once, twice)
				}
			}
		})
	}
}

func TestAWS(t *testing.T) {
	f := mustLookup(t, "aws")
	b := bundleFor(f, when)
	eventTime := regexp.MustCompile(`"eventTime":"([^"]+)"`)
	names := regexp.MustCompile(`userName":"(\w+)"`)
	arns := regexp.MustCompile(`:user/(\w+)`)

	for _, line := range corpusLines(t, "aws") {
		out := f.Rewrite(line, b)
		if !strings.HasPrefix(out, "Jun 01 10:20:30 console - {") {
			t.Errorf("Expected syslog prefix, got %q", out[:40])
		}
		if !strings.Contains(out, `"sourceIPAddress":"198.51.100.1"`) {
			t.Errorf("Expected run source address in %q", out)
		}
		m := eventTime.FindStringSubmatch(out)
		if m == nil {
			t.Fatalf("Expected eventTime in %q", out)
		}
		got, err := time.Parse(time.RFC3339, m[1])
		if err != nil || !got.Equal(when) {
			t.Errorf("Expected eventTime %v, got %s (%v)", when.UTC(), m[1], err)
		}
		for _, re := range []*regexp.Regexp{names, arns} {
			for _, id := range re.FindAllStringSubmatch(out, -1) {
				if id[1] != "tester_01" {
					t.Errorf("Expected identity tester_01, got %s", id[1])
				}
			}
		}
	}
}

func TestAWSExistingSyslogHeader(t *testing.T) {
	f := mustLookup(t, "aws")
	b := bundleFor(f, when)
	out := f.Rewrite(`Dec  9 01:02:03 console - {"eventTime":"2019-01-01T00:00:00Z"}`, b)
	want := `Jun 01 10:20:30 console - {"eventTime":"2015-06-01T06:20:30Z"}`
	if out != want {
		t.Errorf("Expected %s, got %s", want, out)
	}
}

func TestCheckpoint(t *testing.T) {
	f := mustLookup(t, "checkpoint")
	b := bundleFor(f, when)
	line := `<134>1 2020-03-29T23:13:43Z gw CheckPoint 1 - [time:"2020-03-29T23:13:43Z"; dst:"10.0.0.1"; s_port:"51734"; src:"10.0.0.2"; comment:"default"]`
	want := `<134>1 2015-06-01T06:20:30Z gw CheckPoint 1 - [time:"2015-06-01T06:20:30Z"; dst:"198.51.100.2"; s_port:"65535"; src:"198.51.100.1"; comment:"xxxxxxxxxxxx"]`
	if out := f.Rewrite(line, b); out != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, out)
	}
}

func TestFortigate(t *testing.T) {
	f := mustLookup(t, "fortigate")
	b := bundleFor(f, when)
	line := `Nov 21 10:15:42 10.1.1.1 date=2019-11-21 time=10:15:42 eventtime=1574331342 srcip=192.168.1.105 srcport=53311 dstip=93.184.216.34 dstport=443 user="admin" srccountry="Canada" tranip=203.0.113.10 crscore=5 crlevel="low" tz="-0800"`
	out := f.Rewrite(line, b)
	want := `Jun 01 10:20:30 198.51.100.1 date=2015-06-01 time=10:20:30 eventtime=` + strconv.FormatInt(when.Unix(), 10) +
		` srcip=198.51.100.2 srcport=65535 dstip=198.51.100.3 dstport=65535 user="tester_01" srccountry="Japan" tranip=198.51.100.4 crscore=100 crlevel="medium" tz="+0400"`
	if out != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, out)
	}

	fields := regexp.MustCompile(`date=(\S+) time=(\S+)`).FindStringSubmatch(out)
	tz := regexp.MustCompile(`tz="([^"]+)"`).FindStringSubmatch(out)
	decoded, err := time.Parse("2006-01-02 15:04:05 -0700", fields[1]+" "+fields[2]+" "+tz[1])
	if err != nil || !decoded.Equal(when) {
		t.Errorf("Expected date/time/tz to decode to %v, got %v (%v)", when, decoded, err)
	}
}

func TestFortigateReservedAndPrecision(t *testing.T) {
	f := mustLookup(t, "fortigate")
	b := bundleFor(f, when)
	out := f.Rewrite(`srccountry="Reserved" eventtime=1574331342123456789`, b)
	want := `srccountry="Reserved" eventtime=` + strconv.FormatInt(when.UnixNano(), 10)
	if out != want {
		t.Errorf("Expected %s, got %s", want, out)
	}
}

func TestMSSQL(t *testing.T) {
	f := mustLookup(t, "mssql")
	b := bundleFor(f, when)
	line := `Jan  4 03:00:05 SQL MSSQL[1]: {"EventTime":1578106805,"EventReceivedTime":"2020-01-04 03:00:05","Message":"x"}`
	want := `Jun 01 10:20:30 SQL MSSQL[1]: {"EventTime":` + strconv.FormatInt(when.Unix(), 10) + `,"EventReceivedTime":"2015-06-01 10:20:30","Message":"x"}`
	if out := f.Rewrite(line, b); out != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, out)
	}
	if out := f.Rewrite("no fields here", b); out != "no fields here" {
		t.Errorf("Expected template without fields unchanged, got %s", out)
	}
}

func TestSonicwall(t *testing.T) {
	f := mustLookup(t, "sonicwall")
	b := bundleFor(f, when)
	line := `<134>Mar  2 14:05:11 fw id=firewall time="2020-03-02 14:05:11" src=192.168.168.21:57531:X0 dst=172.217.6.110:443:X1 usr="jdoe" user="jdoe" vp_time="2020-03-02 14:05:11 UTC"`
	want := `<134>Jun 01 10:20:30 fw id=firewall time="2015-06-01 10:20:30" src=198.51.100.1:57531:X0 dst=198.51.100.2:443:X1 usr="tester_01" user="tester_01" vp_time="2015-06-01 06:20:30 UTC"`
	if out := f.Rewrite(line, b); out != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, out)
	}
}

func TestStageOrder(t *testing.T) {
	f := Compile(Format{
		Name: "order",
		Rules: []Rule{
			sub("identity", StageIdentity, `v=(addr)`, username),
			sub("address", StageAddress, `v=(\w+)`, func(string, *domain.Bundle) string { return "addr" }),
		},
	})
	b := domain.NewBundle(when)
	b.Username = "bob"
	if out := f.Rewrite("v=old", b); out != "v=bob" {
		t.Errorf("Expected address stage before identity stage, got %s", out)
	}
	if f.Rules[0].Name != "address" {
		t.Errorf("Expected compiled rules ordered by stage, got %s first", f.Rules[0].Name)
	}
}

func TestMissingValuesKeepTemplate(t *testing.T) {
	f := mustLookup(t, "sonicwall")
	b := domain.NewBundle(when)
	out := f.Rewrite(`src=10.0.0.1:1:X0 user="jdoe"`, b)
	if out != `src=10.0.0.1:1:X0 user="jdoe"` {
		t.Errorf("Expected fields without values left alone, got %s", out)
	}
}

func FuzzTimestampConsistency(f *testing.F) {
	names := Names()
	for i, name := range names {
		c, err := corpus.Load(name, nil)
		if err != nil {
			f.Fatal(err)
		}
		for _, line := range c.Lines() {
			f.Add(uint8(i), line)
		}
	}
	f.Add(uint8(2), "date=2019-01-01date=2019-01-01 time=00:00:00:00 eventtime=1")
	f.Add(uint8(1), `12019-01-01T00:00:00Z comment:"2019-01-01T00:00:00Z"`)

	f.Fuzz(func(t *testing.T, idx uint8, line string) {
		format := mustLookup(t, names[int(idx)%len(names)])
		b := bundleFor(format, when)
		timestampOccurrences(t, format, format.Rewrite(line, b), b)
	})
}

func TestFortigateEpochPrecision(t *testing.T) {
	f := mustLookup(t, "fortigate")
	b := bundleFor(f, when)
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"seconds", "1574331342", when.Unix()},
		{"milliseconds", "1574331342123", when.UnixMilli()},
		{"microseconds", "1574331342123456", when.UnixMicro()},
		{"nanoseconds", "1574331342123456789", when.UnixNano()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.Rewrite("eventtime="+tt.in, b)
			want := "eventtime=" + strconv.FormatInt(tt.want, 10)
			if out != want {
				t.Errorf("Expected %s, got %s", want, out)
			}
			if len(out) != len("eventtime=")+len(tt.in) {
				t.Errorf("Expected %d digits kept, got %s", len(tt.in), out)
			}
		})
	}
}

func TestAWSEndToEnd(t *testing.T) {
	f := mustLookup(t, "aws")
	ts := time.Date(2020, time.June, 15, 12, 30, 0, 0, time.UTC)
	b := bundleFor(f, ts)

	for _, tmpl := range []string{
		`"Jan 1 00:00:00 host sourceIPAddress":"10.0.0.1" userName":"alice"`,
		`Jan 1 00:00:00 host sourceIPAddress":"10.0.0.1" userName":"alice"`,
	} {
		out := f.Rewrite(tmpl, b)
		if strings.Contains(out, "10.0.0.1") || strings.Contains(out, "alice") || strings.Contains(out, "Jan 1 00:00:00") {
			t.Errorf("Expected every template value replaced, got %s", out)
		}
		if strings.Count(out, "198.51.100.1") != 1 || strings.Count(out, "tester_01") != 1 {
			t.Errorf("Expected one drawn address and one drawn username, got %s", out)
		}
		if strings.Count(out, "Jun 15 12:30:00") != 1 {
			t.Errorf("Expected a single syslog date Jun 15 12:30:00, got %s", out)
		}
		timestampOccurrences(t, f, out, b)
	}
}

func TestIdentityReapplication(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f := mustLookup(t, name)
			b := bundleFor(f, when)
			other := bundleFor(f, when)
			other.Username = "other_2"

			for _, line := range corpusLines(t, name) {
				once := f.Rewrite(line, b)
				twice := f.Rewrite(once, other)
				for _, r := range f.Rules {
					if r.Stage != StageIdentity {
						continue
					}
					before := r.Pattern.FindAllStringSubmatch(once, -1)
					after := r.Pattern.FindAllStringSubmatch(twice, -1)
					if len(before) != len(after) {
						t.Fatalf("%s: expected %d identity fields, got %d in %q", r.Name, len(before), len(after), twice)
					}
					for _, m := range after {
						if m[1] != "other_2" {
							t.Errorf("%s: expected other_2, got %q in %q", r.Name, m[1], twice)
						}
					}
				}
				timestampOccurrences(t, f, twice, other)
			}
		})
	}
}
