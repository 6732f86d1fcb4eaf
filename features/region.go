package features

import "strings"

const OtherRegion = "Others"

var townToRegion = map[string]string{
	"DOWNTOWN CORE": "Core Central Region",
	"MARINA BAY":    "Core Central Region",
	"MARINA CENTRE": "Core Central Region",
	"RAFFLES PLACE": "Core Central Region",
	"TANJONG PAGAR": "Core Central Region",
	"OUTRAM":        "Core Central Region",
	"SENTOSA":       "Core Central Region",
	"ROCHOR":        "Core Central Region",
	"ORCHARD":       "Core Central Region",
	"NEWTON":        "Core Central Region",
	"RIVER VALLEY":  "Core Central Region",
	"BUKIT TIMAH":   "Core Central Region",
	"HOLLAND ROAD":  "Core Central Region",
	"TANGLIN":       "Core Central Region",
	"NOVENA":        "Core Central Region",
	"THOMSON":       "Core Central Region",
	"CENTRAL AREA":  "Core Central Region",

	"BISHAN":           "Rest of Central Region",
	"BUKIT MERAH":      "Rest of Central Region",
	"GEYLANG":          "Rest of Central Region",
	"KALLANG/WHAMPOA":  "Rest of Central Region",
	"MARINE PARADE":    "Rest of Central Region",
	"QUEENSTOWN":       "Rest of Central Region",
	"SOUTHERN ISLANDS": "Rest of Central Region",
	"TOA PAYOH":        "Rest of Central Region",
	"POTONG PASIR":     "Rest of Central Region",
	"TIONG BAHRU":      "Rest of Central Region",
	"REDHILL":          "Rest of Central Region",
	"SERANGOON":        "Rest of Central Region",
	"ANG MO KIO":       "Rest of Central Region",
	"PAYA LEBAR":       "Rest of Central Region",

	"CENTRAL WATER CATCHMENT": "North Region",
	"LIM CHU KANG":            "North Region",
	"MANDAI":                  "North Region",
	"SEMBAWANG":               "North Region",
	"SIMPANG":                 "North Region",
	"SUNGEI KADUT":            "North Region",
	"WOODLANDS":               "North Region",
	"YISHUN":                  "North Region",

	"HOUGANG":               "North-East Region",
	"PUNGGOL":               "North-East Region",
	"SELETAR":               "North-East Region",
	"SENGKANG":              "North-East Region",
	"NORTH-EASTERN ISLANDS": "North-East Region",
	"JALAN KAYU":            "North-East Region",
	"COMPASSVALE":           "North-East Region",
	"BUANGKOK":              "North-East Region",
	"ANCHORVALE":            "North-East Region",
	"FERNVALE":              "North-East Region",
	"RIVERVALE":             "North-East Region",

	"BEDOK":       "East Region",
	"CHANGI":      "East Region",
	"CHANGI BAY":  "East Region",
	"PASIR RIS":   "East Region",
	"TAMPINES":    "East Region",
	"EAST COAST":  "East Region",
	"SIGLAP":      "East Region",
	"TANAH MERAH": "East Region",

	"BUKIT BATOK":             "West Region",
	"BUKIT PANJANG":           "West Region",
	"BOON LAY":                "West Region",
	"PIONEER":                 "West Region",
	"CHOA CHU KANG":           "West Region",
	"CLEMENTI":                "West Region",
	"JURONG EAST":             "West Region",
	"JURONG WEST":             "West Region",
	"TENGAH":                  "West Region",
	"TUAS":                    "West Region",
	"WESTERN ISLANDS":         "West Region",
	"WESTERN WATER CATCHMENT": "West Region",
	"BENOI":                   "West Region",
	"GHIM MOH":                "West Region",
	"GUL":                     "West Region",
	"PANDAN GARDENS":          "West Region",
	"JURONG ISLAND":           "West Region",
	"KENT RIDGE":              "West Region",
	"NANYANG":                 "West Region",
	"PASIR LABA":              "West Region",
	"TEBAN GARDENS":           "West Region",
	"TOH TUCK":                "West Region",
	"TUAS SOUTH":              "West Region",
	"WEST COAST":              "West Region",
}

// Regions is the closed set of region labels, Others included. One-hot
// region columns are always generated over this list.
var Regions = []string{
	"Core Central Region",
	"East Region",
	"North Region",
	"North-East Region",
	OtherRegion,
	"Rest of Central Region",
	"West Region",
}

// NormalizeTown upper-cases a town name and restores the "/" that column
// normalisation turns into "_" (KALLANG_WHAMPOA is KALLANG/WHAMPOA).
func NormalizeTown(town string) string {
	t := strings.ToUpper(strings.TrimSpace(town))
	return strings.ReplaceAll(t, "_", "/")
}

// RegionFor maps a town to its planning region, or Others when unknown.
func RegionFor(town string) string {
	if region, ok := townToRegion[NormalizeTown(town)]; ok {
		return region
	}
	return OtherRegion
}
