package config

// District represents a district configuration
type District struct {
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Center []float64 `json:"center"` // [lat, lon]
}

// SupportedDistricts is the list of districts the engine can resolve a
// subject position into. Centers are used for nearest-district assignment
// and for the segment grid fallback lookup.
var SupportedDistricts = []District{
	{
		Code:   "tverskoy",
		Name:   "Тверской",
		Center: []float64{55.7652, 37.6050},
	},
	{
		Code:   "basmanny",
		Name:   "Басманный",
		Center: []float64{55.7664, 37.6690},
	},
	{
		Code:   "presnensky",
		Name:   "Пресненский",
		Center: []float64{55.7601, 37.5550},
	},
	{
		Code:   "khamovniki",
		Name:   "Хамовники",
		Center: []float64{55.7338, 37.5850},
	},
	{
		Code:   "zamoskvorechye",
		Name:   "Замоскворечье",
		Center: []float64{55.7342, 37.6330},
	},
	{
		Code:   "arbat",
		Name:   "Арбат",
		Center: []float64{55.7494, 37.5910},
	},
	{
		Code:   "tagansky",
		Name:   "Таганский",
		Center: []float64{55.7399, 37.6660},
	},
	{
		Code:   "meshchansky",
		Name:   "Мещанский",
		Center: []float64{55.7781, 37.6260},
	},
}

// GetDistrictCodes returns the codes of all supported districts
func GetDistrictCodes() []string {
	codes := make([]string, len(SupportedDistricts))
	for i, d := range SupportedDistricts {
		codes[i] = d.Code
	}
	return codes
}

// GetDistrictByCode returns a district configuration by code
func GetDistrictByCode(code string) *District {
	for _, d := range SupportedDistricts {
		if d.Code == code {
			return &d
		}
	}
	return nil
}
