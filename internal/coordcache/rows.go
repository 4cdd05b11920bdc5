package coordcache

import (
	"strconv"
	"strings"

	"github.com/sells-group/parcel-sampler/internal/address"
	"github.com/sells-group/parcel-sampler/internal/model"
)

var (
	addressHeaders = []string{"주소", "소재지", "필지소재지", "address"}
	latHeaders     = []string{"위도", "lat", "latitude"}
	lngHeaders     = []string{"경도", "lng", "lon", "longitude"}
)

func columnIndex(header []string) (addr, lat, lng int) {
	find := func(names []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.Join(strings.Fields(h), ""))
			for _, n := range names {
				if h == n {
					return i
				}
			}
		}
		return -1
	}
	return find(addressHeaders), find(latHeaders), find(lngHeaders)
}

// parseRow accepts rows with a non-blank address and coordinates inside
// the valid WGS84 range.
func parseRow(row []string, addrIdx, latIdx, lngIdx int) (Entry, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	addr := cell(addrIdx)
	if address.Normalize(addr) == "" {
		return Entry{}, false
	}
	lat, err := strconv.ParseFloat(cell(latIdx), 64)
	if err != nil || lat < -90 || lat > 90 {
		return Entry{}, false
	}
	lng, err := strconv.ParseFloat(cell(lngIdx), 64)
	if err != nil || lng < -180 || lng > 180 {
		return Entry{}, false
	}
	return Entry{Address: addr, Coords: model.Coords{Lat: lat, Lng: lng}}, true
}
