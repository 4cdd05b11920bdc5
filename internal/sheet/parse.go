package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// ColumnMapping lists the accepted header spellings per parcel field.
// Offices export the same ledger under different headers, so every field is
// resolved through a list and the first non-empty value wins.
type ColumnMapping struct {
	FarmerID     []string
	FarmerName   []string
	ParcelID     []string
	MainLot      []string
	SubLot       []string
	PNU          []string
	Address      []string
	Sido         []string
	Sigungu      []string
	Eubmyeondong []string
	Ri           []string
	Area         []string
	LandCategory []string
	CropType     []string
	OwnerAddress []string
	OwnerPhone   []string
	Lat          []string
	Lng          []string
}

// DefaultColumnMapping returns the header aliases seen in agricultural
// subsidy ledgers.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		FarmerID:     []string{"농가번호", "경영체번호", "농업인번호", "경영체등록번호", "farmer_id", "farmerid"},
		FarmerName:   []string{"농가명", "경영주", "성명", "농업인명", "farmer_name", "farmername"},
		ParcelID:     []string{"지번", "필지번호", "parcel_id", "parcelid"},
		MainLot:      []string{"본번"},
		SubLot:       []string{"부번"},
		PNU:          []string{"pnu", "필지고유번호", "고유번호"},
		Address:      []string{"주소", "소재지", "필지소재지", "필지주소", "address"},
		Sido:         []string{"시도", "시·도", "sido"},
		Sigungu:      []string{"시군구", "시·군·구", "sigungu"},
		Eubmyeondong: []string{"읍면동", "읍·면·동", "eubmyeondong"},
		Ri:           []string{"리", "법정리", "ri"},
		Area:         []string{"면적", "면적(㎡)", "면적(m2)", "신청면적", "area"},
		LandCategory: []string{"지목", "land_category", "landcategory"},
		CropType:     []string{"작물", "품목", "재배작물", "crop_type", "croptype"},
		OwnerAddress: []string{"주소지", "농가주소", "경영주주소", "owner_address"},
		OwnerPhone:   []string{"연락처", "전화번호", "휴대전화", "owner_phone"},
		Lat:          []string{"위도", "lat", "latitude"},
		Lng:          []string{"경도", "lng", "lon", "longitude"},
	}
}

func (m ColumnMapping) all() [][]string {
	return [][]string{
		m.FarmerID, m.FarmerName, m.ParcelID, m.MainLot, m.SubLot, m.PNU, m.Address,
		m.Sido, m.Sigungu, m.Eubmyeondong, m.Ri, m.Area, m.LandCategory, m.CropType,
		m.OwnerAddress, m.OwnerPhone, m.Lat, m.Lng,
	}
}

// RowError reports a data row that could not become a parcel.
type RowError struct {
	Row    int // 1-based, counting the header row
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ParseParcels maps the header row and the data rows below it to parcels.
// Columns no alias claims are kept in Extra under their header text. Parsed
// parcels start out eligible; eligibility marking runs later.
func ParseParcels(rows [][]string, m ColumnMapping) ([]model.Parcel, []RowError) {
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = headerKey(h)
	}
	mapped := make(map[string]struct{})
	for _, aliases := range m.all() {
		for _, a := range aliases {
			mapped[headerKey(a)] = struct{}{}
		}
	}

	var parcels []model.Parcel
	var errs []RowError
	for i, row := range rows[1:] {
		rowNum := i + 2
		fields := make(map[string]string, len(header))
		extra := make(map[string]string)
		blank := true
		for j, key := range header {
			if j >= len(row) || key == "" {
				continue
			}
			v := strings.TrimSpace(row[j])
			if v == "" {
				continue
			}
			blank = false
			fields[key] = v
			if _, ok := mapped[key]; !ok {
				extra[strings.TrimSpace(rows[0][j])] = v
			}
		}
		if blank {
			continue
		}

		p, reason := buildParcel(fields, m)
		if reason != "" {
			errs = append(errs, RowError{Row: rowNum, Reason: reason})
			continue
		}
		if len(extra) > 0 {
			p.Extra = extra
		}
		parcels = append(parcels, p)
	}

	if len(errs) > 0 {
		zap.L().Warn("sheet: rows skipped", zap.Int("parsed", len(parcels)), zap.Int("skipped", len(errs)))
	}
	return parcels, errs
}

// LoadParcels reads a workbook sheet or csv export and parses it with the
// default mapping.
func LoadParcels(path string, opts XLSXOptions) ([]model.Parcel, []RowError, error) {
	rows, err := ReadRows(path, opts)
	if err != nil {
		return nil, nil, err
	}
	parcels, errs := ParseParcels(rows, DefaultColumnMapping())
	return parcels, errs, nil
}

func buildParcel(fields map[string]string, m ColumnMapping) (model.Parcel, string) {
	get := func(aliases []string) string {
		keys := make([]string, len(aliases))
		for i, a := range aliases {
			keys[i] = headerKey(a)
		}
		return model.FirstNonEmpty(fields, keys...)
	}

	p := model.Parcel{
		FarmerID:     get(m.FarmerID),
		FarmerName:   get(m.FarmerName),
		ParcelID:     get(m.ParcelID),
		PNU:          get(m.PNU),
		Address:      get(m.Address),
		Sido:         get(m.Sido),
		Sigungu:      get(m.Sigungu),
		Eubmyeondong: get(m.Eubmyeondong),
		Ri:           get(m.Ri),
		LandCategory: get(m.LandCategory),
		CropType:     get(m.CropType),
		OwnerAddress: get(m.OwnerAddress),
		OwnerPhone:   get(m.OwnerPhone),
		IsEligible:   true,
	}

	if p.ParcelID == "" {
		p.ParcelID = ComposeLot(get(m.MainLot), get(m.SubLot))
	}
	if p.FarmerID == "" {
		return p, "missing farmer id"
	}
	if p.Address == "" && p.Ri == "" && p.PNU == "" {
		return p, "missing address"
	}

	fillFromAddress(&p)
	if p.Ri == "" {
		p.Ri = model.Unclassified
	}

	if v := get(m.Area); v != "" {
		a, err := parseNumber(v)
		if err != nil {
			return p, fmt.Sprintf("invalid area %q", v)
		}
		p.Area = &a
	}

	lat, lng := get(m.Lat), get(m.Lng)
	if lat != "" && lng != "" {
		la, errLat := parseNumber(lat)
		ln, errLng := parseNumber(lng)
		if errLat != nil || errLng != nil {
			return p, fmt.Sprintf("invalid coordinates %q,%q", lat, lng)
		}
		p.Coords = &model.Coords{Lat: la, Lng: ln}
	}
	return p, ""
}

// ComposeLot joins main and sub lot numbers as "본번-부번". A sub lot of zero
// is dropped.
func ComposeLot(main, sub string) string {
	main, sub = trimNumber(main), trimNumber(sub)
	if main == "" {
		return ""
	}
	if sub == "" || sub == "0" {
		return main
	}
	return main + "-" + sub
}

func trimNumber(s string) string {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return strconv.Itoa(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return s
}

// fillFromAddress fills blank administrative fields from a space-separated
// road-lot address such as "전라남도 나주시 왕곡면 신포리 123-4".
func fillFromAddress(p *model.Parcel) {
	var sido, sigungu, emd, ri string
	for _, tok := range strings.Fields(p.Address) {
		switch {
		case sido == "" && sigungu == "" && isSido(tok):
			sido = tok
		case sigungu == "" && emd == "" && hasAnySuffix(tok, "시", "군", "구"):
			sigungu = tok
		case emd == "" && ri == "" && hasAnySuffix(tok, "읍", "면", "동"):
			emd = tok
		case ri == "" && strings.HasSuffix(tok, "리") && len([]rune(tok)) > 1:
			ri = tok
		}
	}
	fillBlank(&p.Sido, sido)
	fillBlank(&p.Sigungu, sigungu)
	fillBlank(&p.Eubmyeondong, emd)
	fillBlank(&p.Ri, ri)
}

func isSido(tok string) bool {
	return hasAnySuffix(tok, "도", "특별시", "광역시", "특별자치시", "특별자치도")
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) && len([]rune(s)) > len([]rune(suf)) {
			return true
		}
	}
	return false
}

func fillBlank(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), ""))
}
