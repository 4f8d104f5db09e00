package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	DefaultDogSpeed        = 1.0
	DefaultBagCapacity     = 3
	DefaultRetirementTime  = 60 * time.Second
	DefaultLootPeriod      = 5 * time.Second
	DefaultLootProbability = 0.5
)

var ErrNoMaps = errors.New("config declares no maps")

type roadConfig struct {
	X0 int  `json:"x0"`
	Y0 int  `json:"y0"`
	X1 *int `json:"x1"`
	Y1 *int `json:"y1"`
}

type buildingConfig struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type officeConfig struct {
	ID      string `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	OffsetX int    `json:"offsetX"`
	OffsetY int    `json:"offsetY"`
}

type lootTypeConfig struct {
	Value int `json:"value"`
}

type mapConfig struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	DogSpeed    *float64         `json:"dogSpeed"`
	BagCapacity *int             `json:"bagCapacity"`
	Roads       []roadConfig     `json:"roads"`
	Buildings   []buildingConfig `json:"buildings"`
	Offices     []officeConfig   `json:"offices"`
	LootTypes   []lootTypeConfig `json:"lootTypes"`
}

type lootGeneratorConfig struct {
	Period      float64 `json:"period"`
	Probability float64 `json:"probability"`
}

type gameConfig struct {
	DefaultDogSpeed    *float64             `json:"defaultDogSpeed"`
	DefaultBagCapacity *int                 `json:"defaultBagCapacity"`
	DogRetirementTime  *float64             `json:"dogRetirementTime"`
	LootGenerator      *lootGeneratorConfig `json:"lootGeneratorConfig"`
	Maps               []json.RawMessage    `json:"maps"`
}

// GameConfig is the parsed game configuration: built maps plus the untouched
// per-map JSON for the descriptor endpoint.
type GameConfig struct {
	Maps           []*Map
	RawMaps        map[string]json.RawMessage
	RetirementTime time.Duration
	LootPeriod     time.Duration
	LootProb       float64
}

// LoadGameConfig reads and validates the JSON game configuration at path.
func LoadGameConfig(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game config: %w", err)
	}
	return ParseGameConfig(data)
}

// ParseGameConfig builds map models from raw configuration bytes.
func ParseGameConfig(data []byte) (*GameConfig, error) {
	var raw gameConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse game config: %w", err)
	}
	if len(raw.Maps) == 0 {
		return nil, ErrNoMaps
	}

	cfg := &GameConfig{
		RawMaps:        make(map[string]json.RawMessage, len(raw.Maps)),
		RetirementTime: DefaultRetirementTime,
		LootPeriod:     DefaultLootPeriod,
		LootProb:       DefaultLootProbability,
	}
	dogSpeed := DefaultDogSpeed
	if raw.DefaultDogSpeed != nil {
		dogSpeed = *raw.DefaultDogSpeed
	}
	bagCapacity := DefaultBagCapacity
	if raw.DefaultBagCapacity != nil {
		bagCapacity = *raw.DefaultBagCapacity
	}
	if raw.DogRetirementTime != nil {
		cfg.RetirementTime = time.Duration(*raw.DogRetirementTime * float64(time.Second))
	}
	if raw.LootGenerator != nil {
		cfg.LootPeriod = time.Duration(raw.LootGenerator.Period * float64(time.Second))
		cfg.LootProb = raw.LootGenerator.Probability
	}

	for _, rawMap := range raw.Maps {
		var mc mapConfig
		if err := json.Unmarshal(rawMap, &mc); err != nil {
			return nil, fmt.Errorf("parse map config: %w", err)
		}
		m, err := buildMap(mc, dogSpeed, bagCapacity)
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.RawMaps[m.ID]; dup {
			return nil, fmt.Errorf("duplicate map id %q", m.ID)
		}
		cfg.Maps = append(cfg.Maps, m)
		cfg.RawMaps[m.ID] = rawMap
	}
	return cfg, nil
}

// Map returns the built map with the given id, or nil.
func (c *GameConfig) Map(id string) *Map {
	for _, m := range c.Maps {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func buildMap(mc mapConfig, defaultSpeed float64, defaultCapacity int) (*Map, error) {
	m := &Map{
		ID:          mc.ID,
		Name:        mc.Name,
		DogSpeed:    defaultSpeed,
		BagCapacity: defaultCapacity,
	}
	if mc.DogSpeed != nil {
		m.DogSpeed = *mc.DogSpeed
	}
	if mc.BagCapacity != nil {
		m.BagCapacity = *mc.BagCapacity
	}

	if len(mc.Roads) == 0 {
		return nil, fmt.Errorf("map %q: no roads", mc.ID)
	}
	for _, rc := range mc.Roads {
		switch {
		case rc.X1 != nil:
			m.Roads = append(m.Roads, NewHorizontalRoad(rc.X0, rc.Y0, *rc.X1))
		case rc.Y1 != nil:
			m.Roads = append(m.Roads, NewVerticalRoad(rc.X0, rc.Y0, *rc.Y1))
		default:
			// A road without a far end is a zero-length stub.
			m.Roads = append(m.Roads, NewHorizontalRoad(rc.X0, rc.Y0, rc.X0))
		}
	}

	for _, bc := range mc.Buildings {
		m.Buildings = append(m.Buildings, Building{X: bc.X, Y: bc.Y, W: bc.W, H: bc.H})
	}
	for _, oc := range mc.Offices {
		office := Office{
			ID:      oc.ID,
			OffsetX: oc.OffsetX,
			OffsetY: oc.OffsetY,
		}
		office.Pos.X = oc.X
		office.Pos.Y = oc.Y
		if err := m.AddOffice(office); err != nil {
			return nil, fmt.Errorf("map %q: %w", mc.ID, err)
		}
	}
	for _, lt := range mc.LootTypes {
		m.LootValues = append(m.LootValues, lt.Value)
	}
	return m, nil
}
