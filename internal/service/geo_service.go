package service

import (
	"net/netip"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"geoipd/internal/dataset"
	"geoipd/internal/model"
)

type cacheKey struct {
	addr string
	lang string
}

// GeoService resolves addresses against the loaded dataset. Resolution is a
// pure function of the immutable DB; the optional LRU only memoizes its
// output per address and language.
type GeoService struct {
	db     *dataset.DB
	cache  *lru.Cache[cacheKey, *model.ResolvedLocation]
	logger *zap.Logger
}

// NewGeoService wraps db. cacheSize is the number of memoized responses to
// retain; zero disables the cache.
func NewGeoService(db *dataset.DB, cacheSize int, logger *zap.Logger) (*GeoService, error) {
	s := &GeoService{
		db:     db,
		logger: logger,
	}

	if cacheSize > 0 {
		cache, err := lru.New[cacheKey, *model.ResolvedLocation](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	return s, nil
}

// Resolve maps rawIP to its geographic record. An empty or unparsable
// rawIP is replaced by callerIP, the transport-detected address, and
// resolution proceeds; a bad query parameter is policy, not an error.
// Unknown languages deterministically fall back to English.
func (s *GeoService) Resolve(rawIP, lang, callerIP string) *model.ResolvedLocation {
	addr, err := netip.ParseAddr(strings.TrimSpace(rawIP))
	if err != nil {
		addr, err = netip.ParseAddr(strings.TrimSpace(callerIP))
		if err != nil {
			// Not even the transport could tell us who is calling. Echo
			// whatever it reported, with no geo data.
			return &model.ResolvedLocation{IPAddress: callerIP}
		}
	}
	addr = addr.Unmap()

	lang = strings.ToLower(strings.TrimSpace(lang))
	if !s.db.HasLanguage(lang) {
		lang = dataset.DefaultLanguage
	}

	key := cacheKey{addr: addr.String(), lang: lang}
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			return res
		}
	}

	res := s.resolve(addr, lang)

	if s.cache != nil {
		s.cache.Add(key, res)
	}

	return res
}

func (s *GeoService) resolve(addr netip.Addr, lang string) *model.ResolvedLocation {
	res := &model.ResolvedLocation{IPAddress: addr.String()}

	if dataset.IsReserved(addr) {
		return res
	}

	r, ok := s.db.Find(addr)
	if !ok {
		return res
	}

	loc, ok := s.db.Location(lang, r.GeonameID)
	if !ok {
		loc, ok = s.db.Location(dataset.DefaultLanguage, r.GeonameID)
	}
	if !ok {
		// The range references a geoname the locations tables don't carry.
		s.logger.Debug("geoname id missing from locations tables",
			zap.Uint32("geoname_id", r.GeonameID),
			zap.String("ip", res.IPAddress))
		return res
	}

	res.GeoData = &model.GeoData{
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		PostalCode:    r.PostalCode,
		ContinentCode: loc.ContinentCode,
		ContinentName: loc.ContinentName,
		CountryCode:   loc.CountryCode,
		CountryName:   loc.CountryName,
		RegionCode:    loc.RegionCode,
		RegionName:    loc.RegionName,
		ProvinceCode:  loc.ProvinceCode,
		ProvinceName:  loc.ProvinceName,
		CityName:      loc.CityName,
		Timezone:      loc.Timezone,
	}

	return res
}
