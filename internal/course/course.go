// Package course describes the static geometry a shot is played on: the hole and the
// ordered list of hills. The ground plane is implicit.
package course

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"minigolf/engine/internal/physics"
)

// ReferenceName names the built-in course.
const ReferenceName = "reference"

// Hill is an axis-aligned ellipsoid. Radii are the semi-axes before the ball radius is
// added.
type Hill struct {
	Center mgl64.Vec3 `json:"center" yaml:"center"`
	Radii  mgl64.Vec3 `json:"radii" yaml:"radii"`
}

// Course is immutable once validated. Hill order matters: when several hills are touched
// in one tick the first listed wins.
type Course struct {
	Name  string     `json:"name" yaml:"name"`
	Hole  mgl64.Vec3 `json:"hole" yaml:"hole"`
	Hills []Hill     `json:"hills" yaml:"hills"`
}

// Reference returns the built-in course with the hole at (0,0,30) and two hills.
func Reference() Course {
	return Course{
		Name: ReferenceName,
		Hole: mgl64.Vec3{0, 0, 30},
		Hills: []Hill{
			{Center: mgl64.Vec3{15, -2, 13}, Radii: mgl64.Vec3{12, 5, 8}},
			{Center: mgl64.Vec3{-10, -1, 17}, Radii: mgl64.Vec3{9, 4, 6}},
		},
	}
}

// Obstacles converts the hills into physics obstacles in declaration order.
func (c Course) Obstacles() []physics.Obstacle {
	obstacles := make([]physics.Obstacle, 0, len(c.Hills))
	for _, hill := range c.Hills {
		obstacles = append(obstacles, physics.Ellipsoid(hill.Center, hill.Radii))
	}
	return obstacles
}

// Validate rejects names, coordinates and radii the physics cannot handle.
func (c Course) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "course name must not be empty")
	}
	if !finite(c.Hole) {
		problems = append(problems, fmt.Sprintf("hole must be finite, got %v", c.Hole))
	}
	for i, hill := range c.Hills {
		if !finite(hill.Center) {
			problems = append(problems, fmt.Sprintf("hill %d centre must be finite, got %v", i, hill.Center))
		}
		//1.- Zero or negative semi-axes would divide by zero in the normal computation.
		for axis := 0; axis < 3; axis++ {
			r := hill.Radii[axis]
			if !(r > 0) || math.IsInf(r, 0) {
				problems = append(problems, fmt.Sprintf("hill %d radius %d must be positive, got %v", i, axis, r))
			}
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Fingerprint hashes the geometry so recordings can be matched to the course they were
// played on. The name is not part of the hash.
func (c Course) Fingerprint() uint64 {
	buf := make([]byte, 0, 8*3*(1+2*len(c.Hills)))
	buf = appendVec(buf, c.Hole)
	for _, hill := range c.Hills {
		buf = appendVec(buf, hill.Center)
		buf = appendVec(buf, hill.Radii)
	}
	return xxhash.Sum64(buf)
}

func appendVec(buf []byte, v mgl64.Vec3) []byte {
	for _, component := range v {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(component))
	}
	return buf
}

func finite(v mgl64.Vec3) bool {
	for _, component := range v {
		if math.IsNaN(component) || math.IsInf(component, 0) {
			return false
		}
	}
	return true
}

// Decode parses a YAML course document and validates it. JSON is valid YAML, so both
// formats are accepted.
func Decode(r io.Reader) (Course, error) {
	var c Course
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Course{}, fmt.Errorf("decode course: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Course{}, fmt.Errorf("invalid course %q: %w", c.Name, err)
	}
	return c, nil
}

// DecodeJSON parses a JSON course document and validates it.
func DecodeJSON(r io.Reader) (Course, error) {
	var c Course
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Course{}, fmt.Errorf("decode course: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Course{}, fmt.Errorf("invalid course %q: %w", c.Name, err)
	}
	return c, nil
}

// Load reads a course file. An empty path returns the reference course.
func Load(path string) (Course, error) {
	if strings.TrimSpace(path) == "" {
		return Reference(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Course{}, fmt.Errorf("open course: %w", err)
	}
	defer file.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DecodeJSON(file)
	}
	return Decode(file)
}
