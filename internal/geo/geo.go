package geo

import (
	"net"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/oschwald/geoip2-golang"
	"github.com/pkg/errors"
)

type Location struct {
	City      string
	Latitude  float64
	Longitude float64
}

// Lookup resolves an address to a location
type Lookup interface {
	Locate(addr string) (Location, error)
}

// Locator reads a GeoLite2/GeoIP2 City database
type Locator struct {
	reader *geoip2.Reader
}

func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open geoip db %s", path)
	}
	return &Locator{reader: r}, nil
}

func (l *Locator) Locate(addr string) (Location, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return Location{}, domain.LookupMiss{Address: addr, Err: errors.New("not an ip address")}
	}
	rec, err := l.reader.City(ip)
	if err != nil {
		return Location{}, domain.LookupMiss{Address: addr, Err: err}
	}
	loc := Location{
		City:      rec.City.Names["en"],
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}
	if loc.City == "" && loc.Latitude == 0 && loc.Longitude == 0 {
		return Location{}, domain.LookupMiss{Address: addr, Err: errors.New("address not in database")}
	}
	return loc, nil
}

func (l *Locator) Close() error {
	return l.reader.Close()
}

type annotation struct {
	City      string `json:"ip_city"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Annotator appends a "location" member to JSON bodied records, looked up
// from the address held for role.
type Annotator struct {
	lookup Lookup
	role   string
}

func NewAnnotator(lookup Lookup, role string) *Annotator {
	return &Annotator{lookup: lookup, role: role}
}

func (a *Annotator) Annotate(line string, b *domain.Bundle) (string, error) {
	if !strings.HasSuffix(line, "}") {
		return line, nil
	}
	addr := b.Addresses[a.role]
	loc, err := a.lookup.Locate(addr)
	if err != nil {
		return line, err
	}

	body, err := sonic.Marshal(annotation{
		City:      loc.City,
		Latitude:  strconv.FormatFloat(loc.Latitude, 'f', 4, 64),
		Longitude: strconv.FormatFloat(loc.Longitude, 'f', 4, 64),
	})
	if err != nil {
		return line, errors.Wrap(err, "failed to encode location")
	}
	return line[:len(line)-1] + `,"location":` + string(body) + "}", nil
}
