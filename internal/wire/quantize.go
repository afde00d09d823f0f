package wire

import (
	"math"

	"github.com/reeftide/abyssal-server/internal/types"
)

// Quantization steps from the protocol's numeric encoding rules.
const (
	positionStep    = 100.0  // 1/100 m
	rotationStep    = 1000.0 // 1/1000 rad
	visualScaleStep = 1000.0 // 1/1000
	volumeStep      = 100.0  // 1/100 m^3
)

// quantize rounds v*step into an int32, clamping NaN/Inf to zero and
// saturating at the int32 bounds instead of wrapping.
func quantize(v, step float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	scaled := math.Round(v * step)
	if scaled > math.MaxInt32 {
		return math.MaxInt32
	}
	if scaled < math.MinInt32 {
		return math.MinInt32
	}
	return int32(scaled)
}

func dequantize(q int32, step float64) float64 {
	return float64(q) / step
}

func quantizePos(v float64) int32      { return quantize(v, positionStep) }
func dequantizePos(q int32) float64    { return dequantize(q, positionStep) }
func quantizeRot(v float64) int32      { return quantize(v, rotationStep) }
func dequantizeRot(q int32) float64    { return dequantize(q, rotationStep) }
func quantizeScale(v float64) int32    { return quantize(v, visualScaleStep) }
func dequantizeScale(q int32) float64  { return dequantize(q, visualScaleStep) }
func quantizeVolume(v float64) int32   { return quantize(types.ClampWorldVolume(v), volumeStep) }
func dequantizeVolume(q int32) float64 { return dequantize(q, volumeStep) }

func (e *encoder) putVec3Pos(v types.Vec3) {
	e.putInt32(quantizePos(v.X))
	e.putInt32(quantizePos(v.Y))
	e.putInt32(quantizePos(v.Z))
}

func (d *decoder) getVec3Pos() types.Vec3 {
	return types.Vec3{X: dequantizePos(d.getInt32()), Y: dequantizePos(d.getInt32()), Z: dequantizePos(d.getInt32())}
}

func (e *encoder) putVec3Rot(v types.Vec3) {
	e.putInt32(quantizeRot(v.X))
	e.putInt32(quantizeRot(v.Y))
	e.putInt32(quantizeRot(v.Z))
}

func (d *decoder) getVec3Rot() types.Vec3 {
	return types.Vec3{X: dequantizeRot(d.getInt32()), Y: dequantizeRot(d.getInt32()), Z: dequantizeRot(d.getInt32())}
}

func (e *encoder) putCreature(c types.Creature) {
	e.putString(c.Type, 0)
	e.putString(c.Class, 0)
	e.putUint32(c.VariantIndex)
	e.putUint32(c.Seed)
}

func (d *decoder) getCreature() types.Creature {
	return types.Creature{
		Type:         d.getString(),
		Class:        d.getString(),
		VariantIndex: d.getUint32(),
		Seed:         d.getUint32(),
	}
}

func (e *encoder) putTransform(t types.Transform) {
	e.putVec3Pos(t.Pos)
	e.putVec3Rot(t.Rot)
	e.putInt32(quantizeScale(t.VisualScale))
}

func (d *decoder) getTransform() types.Transform {
	return types.Transform{
		Pos:         d.getVec3Pos(),
		Rot:         d.getVec3Rot(),
		VisualScale: dequantizeScale(d.getInt32()),
	}
}

func (e *encoder) putParams(params map[string]string) {
	e.putUint16(uint16(len(params)))
	for k, v := range params {
		e.putString(k, 0)
		e.putString(v, 0)
	}
}

func (d *decoder) getParams() map[string]string {
	n := d.getUint16()
	if d.err != nil {
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for i := uint16(0); i < n; i++ {
		k := d.getString()
		v := d.getString()
		if d.err != nil {
			return nil
		}
		out[k] = v
	}
	return out
}
