package model

import (
	"net/netip"
)

// RangeRecord is one row of the blocks dataset: an inclusive span of
// addresses within a single family, the geoname it maps to, and the
// coordinates the publisher ships per network.
type RangeRecord struct {
	Start      netip.Addr
	End        netip.Addr
	GeonameID  uint32
	PostalCode string
	Latitude   float64
	Longitude  float64
}

// LocationRecord is one row of a per-language locations dataset, keyed by
// geoname id. Any field except GeonameID may be empty.
type LocationRecord struct {
	GeonameID     uint32
	ContinentCode string
	ContinentName string
	CountryCode   string
	CountryName   string
	RegionCode    string
	RegionName    string
	ProvinceCode  string
	ProvinceName  string
	CityName      string
	Timezone      string
}

// GeoData holds every geographic field of a successful resolution. Fields
// are always emitted, empty strings included, so a record with no region is
// distinguishable from a record that was never matched at all.
type GeoData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	PostalCode    string  `json:"postal_code"`
	ContinentCode string  `json:"continent_code"`
	ContinentName string  `json:"continent_name"`
	CountryCode   string  `json:"country_code"`
	CountryName   string  `json:"country_name"`
	RegionCode    string  `json:"region_code"`
	RegionName    string  `json:"region_name"`
	ProvinceCode  string  `json:"province_code"`
	ProvinceName  string  `json:"province_name"`
	CityName      string  `json:"city_name"`
	Timezone      string  `json:"timezone"`
}

// ResolvedLocation is the wire record for one resolution. GeoData is nil for
// addresses with no geo data (private, reserved, or outside every loaded
// range); encoding/json then emits only ip_address, with every other field
// absent rather than null or empty.
type ResolvedLocation struct {
	IPAddress string `json:"ip_address"`
	*GeoData
}

type Error struct {
	Message string `json:"message"`
}
