package valuation

import (
	"fmt"
	"strings"
)

// BuildingType is a closed classification of building construction.
// Unrecognized values resolve to BuildingOther at ingestion time so queries
// never re-parse free-form strings.
type BuildingType int

const (
	BuildingOther BuildingType = iota
	BuildingPanel
	BuildingBrick
	BuildingMonolithic
	BuildingBlock
	BuildingWood
)

func (b BuildingType) String() string {
	switch b {
	case BuildingPanel:
		return "panel"
	case BuildingBrick:
		return "brick"
	case BuildingMonolithic:
		return "monolithic"
	case BuildingBlock:
		return "block"
	case BuildingWood:
		return "wood"
	default:
		return "other"
	}
}

// ParseBuildingType normalizes a raw building type string. Both the English
// and the source-data Russian spellings are accepted.
func ParseBuildingType(raw string) BuildingType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "panel", "панельный", "панель":
		return BuildingPanel
	case "brick", "кирпичный", "кирпич":
		return BuildingBrick
	case "monolithic", "monolith", "монолитный", "монолит", "монолит-кирпич":
		return BuildingMonolithic
	case "block", "блочный":
		return BuildingBlock
	case "wood", "wooden", "деревянный":
		return BuildingWood
	default:
		return BuildingOther
	}
}

// HeightBand buckets buildings by total floor count.
type HeightBand int

const (
	HeightLow    HeightBand = iota // <= 5 floors
	HeightMedium                   // 6-10 floors
	HeightHigh                     // > 10 floors
)

func (h HeightBand) String() string {
	switch h {
	case HeightMedium:
		return "medium"
	case HeightHigh:
		return "high"
	default:
		return "low"
	}
}

func HeightBandFor(totalFloors int) HeightBand {
	switch {
	case totalFloors > 10:
		return HeightHigh
	case totalFloors > 5:
		return HeightMedium
	default:
		return HeightLow
	}
}

const maxSegmentRooms = 5

// Segment is the (building type x height band x rooms) bucket used for
// aggregate fallback pricing. Rooms is capped at maxSegmentRooms.
type Segment struct {
	BuildingType BuildingType
	HeightBand   HeightBand
	Rooms        int
}

func NewSegment(buildingType string, totalFloors, rooms int) Segment {
	if rooms > maxSegmentRooms {
		rooms = maxSegmentRooms
	}
	if rooms < 0 {
		rooms = 0
	}
	return Segment{
		BuildingType: ParseBuildingType(buildingType),
		HeightBand:   HeightBandFor(totalFloors),
		Rooms:        rooms,
	}
}

// Key is the stable lookup key for the full segment.
func (s Segment) Key() string {
	return fmt.Sprintf("%s-%s-%d", s.BuildingType, s.HeightBand, s.Rooms)
}

// WidenedKey drops the room-count dimension, used when no exact segment
// aggregate exists.
func (s Segment) WidenedKey() string {
	return fmt.Sprintf("%s-%s", s.BuildingType, s.HeightBand)
}
