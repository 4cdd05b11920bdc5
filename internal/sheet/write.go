package sheet

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// Sheet names written by WriteResult.
const (
	SheetSelected    = "selected"
	SheetRiStats     = "ri_stats"
	SheetFarmerStats = "farmer_stats"
	SheetValidation  = "validation"
)

var selectedHeader = []string{
	"구분", "농가번호", "농가명", "지번", "PNU", "주소", "시도", "시군구", "읍면동", "리",
	"면적", "지목", "작물", "위도", "경도", "대체대상",
}

// WriteResult saves the selection, region stats, owner stats and validation
// findings as one workbook.
func WriteResult(path string, res *model.ExtractionResult) error {
	if res == nil {
		return eris.New("sheet: nil result")
	}
	f := xlsx.NewFile()

	sel, err := f.AddSheet(SheetSelected)
	if err != nil {
		return eris.Wrap(err, "sheet: add selected sheet")
	}
	addStrings(sel, selectedHeader...)
	for _, p := range res.SelectedParcels {
		row := sel.AddRow()
		addCells(row,
			string(p.EffectiveCategory()), p.FarmerID, p.FarmerName, p.ParcelID, p.PNU, p.Address,
			p.Sido, p.Sigungu, p.Eubmyeondong, p.Ri,
		)
		addOptionalFloat(row, p.Area)
		addCells(row, p.LandCategory, p.CropType)
		if p.Coords != nil {
			row.AddCell().SetFloat(p.Coords.Lat)
			row.AddCell().SetFloat(p.Coords.Lng)
		} else {
			addCells(row, "", "")
		}
		addCells(row, p.SubstituteFor)
	}

	ri, err := f.AddSheet(SheetRiStats)
	if err != nil {
		return eris.Wrap(err, "sheet: add ri stats sheet")
	}
	addStrings(ri, "리", "전체", "적격", "선정", "목표")
	for _, st := range res.RiStats {
		row := ri.AddRow()
		addCells(row, st.Ri)
		addInts(row, st.Total, st.Eligible, st.Selected, st.Target)
	}

	fs, err := f.AddSheet(SheetFarmerStats)
	if err != nil {
		return eris.Wrap(err, "sheet: add farmer stats sheet")
	}
	addStrings(fs, "농가번호", "전체", "적격", "선정")
	for _, st := range res.FarmerStats {
		row := fs.AddRow()
		addCells(row, st.FarmerID)
		addInts(row, st.Total, st.Eligible, st.Selected)
	}

	val, err := f.AddSheet(SheetValidation)
	if err != nil {
		return eris.Wrap(err, "sheet: add validation sheet")
	}
	addStrings(val, "level", "code", "message", "ri", "farmer_id")
	addStrings(val, "summary", "RUN", "run_id="+res.RunID+" seed="+strconv.FormatUint(uint64(res.Seed), 10)+
		" valid="+strconv.FormatBool(res.Validation.Valid), "", "")
	for _, is := range res.Validation.Errors {
		addStrings(val, "error", is.Code, is.Message, is.Ri, is.FarmerID)
	}
	for _, is := range res.Validation.Warnings {
		addStrings(val, "warning", is.Code, is.Message, is.Ri, is.FarmerID)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "sheet: save %s", path)
	}
	return nil
}

func addStrings(sh *xlsx.Sheet, values ...string) {
	addCells(sh.AddRow(), values...)
}

func addCells(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addInts(row *xlsx.Row, values ...int) {
	for _, v := range values {
		row.AddCell().SetInt(v)
	}
}

func addOptionalFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
