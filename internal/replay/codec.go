package replay

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"minigolf/engine/internal/physics"
)

// StatePayloadSize is the encoded size of one ball state: position and velocity as
// little-endian float64 followed by the regime byte.
const StatePayloadSize = 6*8 + 1

// EncodeState packs a ball state into its fixed-size binary form.
func EncodeState(state physics.BallState) []byte {
	buf := make([]byte, 0, StatePayloadSize)
	for _, v := range [2]mgl64.Vec3{state.Position, state.Velocity} {
		for _, component := range v {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(component))
		}
	}
	return append(buf, byte(state.Regime))
}

// DecodeState reverses EncodeState.
func DecodeState(payload []byte) (physics.BallState, error) {
	if len(payload) != StatePayloadSize {
		return physics.BallState{}, fmt.Errorf("state payload must be %d bytes, got %d", StatePayloadSize, len(payload))
	}
	var state physics.BallState
	read := func(i int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	state.Position = mgl64.Vec3{read(0), read(1), read(2)}
	state.Velocity = mgl64.Vec3{read(3), read(4), read(5)}
	regime := physics.Regime(payload[48])
	if regime > physics.Holed {
		return physics.BallState{}, fmt.Errorf("unknown regime %d", payload[48])
	}
	state.Regime = regime
	return state, nil
}
