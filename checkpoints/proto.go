package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf wire layout of a checkpoint. Field numbers are part of the file
// format and must not be reused.
//
//	Checkpoint      1 metadata, 2 training_state, 3 weights[], 4 optimizer_states[]
//	Metadata        1 version, 2 framework, 3 created_at_unix_nano, 4 description, 5 tags[], 6 run_id
//	TrainingState   1 epoch, 2 step, 3 learning_rate (fixed32), 4 total_steps
//	WeightTensor    1 name, 2 shape (packed), 3 data (packed fixed32), 4 layer, 5 type,
//	                6 data_f16 (little-endian binary16), 7 trainable
//	OptimizerState  1 type, 2 parameters (JSON), 3 state_data[], 4 group
//	OptimizerTensor 1 name, 2 shape (packed), 3 data (packed fixed32), 4 state_type, 5 parameter

func marshalCheckpoint(c *Checkpoint, half bool) ([]byte, error) {
	var b []byte
	b = appendMessage(b, 1, marshalMetadata(c.Metadata))
	b = appendMessage(b, 2, marshalTrainingState(c.TrainingState))
	for _, w := range c.Weights {
		b = appendMessage(b, 3, marshalWeight(w, half))
	}
	for _, st := range c.OptimizerStates {
		m, err := marshalOptimizerState(st)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 4, m)
	}
	return b, nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendShape(b []byte, num protowire.Number, shape []int) []byte {
	var packed []byte
	for _, d := range shape {
		packed = protowire.AppendVarint(packed, uint64(d))
	}
	return appendMessage(b, num, packed)
}

func appendFloats(b []byte, num protowire.Number, data []float32) []byte {
	packed := make([]byte, 0, 4*len(data))
	for _, f := range data {
		packed = protowire.AppendFixed32(packed, math.Float32bits(f))
	}
	return appendMessage(b, num, packed)
}

func appendHalfFloats(b []byte, num protowire.Number, data []float32) []byte {
	packed := make([]byte, 0, 2*len(data))
	for _, f := range data {
		u := float16.Fromfloat32(f).Bits()
		packed = append(packed, byte(u), byte(u>>8))
	}
	return appendMessage(b, num, packed)
}

func marshalMetadata(m CheckpointMetadata) []byte {
	var b []byte
	b = appendString(b, 1, m.Version)
	b = appendString(b, 2, m.Framework)
	if !m.CreatedAt.IsZero() {
		b = appendVarint(b, 3, uint64(m.CreatedAt.UnixNano()))
	}
	b = appendString(b, 4, m.Description)
	for _, tag := range m.Tags {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	b = appendString(b, 6, m.RunID)
	return b
}

func marshalTrainingState(s TrainingState) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(s.Epoch))
	b = appendVarint(b, 2, uint64(s.Step))
	b = protowire.AppendTag(b, 3, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(s.LearningRate))
	b = appendVarint(b, 4, uint64(s.TotalSteps))
	return b
}

func marshalWeight(w WeightTensor, half bool) []byte {
	var b []byte
	b = appendString(b, 1, w.Name)
	b = appendShape(b, 2, w.Shape)
	if half {
		b = appendHalfFloats(b, 6, w.Data)
	} else {
		b = appendFloats(b, 3, w.Data)
	}
	b = appendString(b, 4, w.Layer)
	b = appendString(b, 5, w.Type)
	b = appendVarint(b, 7, protowire.EncodeBool(w.Trainable))
	return b
}

func marshalOptimizerState(s OptimizerState) ([]byte, error) {
	params, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode optimizer parameters: %w", err)
	}
	var b []byte
	b = appendString(b, 1, s.Type)
	b = appendMessage(b, 2, params)
	for _, t := range s.StateData {
		var m []byte
		m = appendString(m, 1, t.Name)
		m = appendShape(m, 2, t.Shape)
		m = appendFloats(m, 3, t.Data)
		m = appendString(m, 4, t.StateType)
		m = appendString(m, 5, t.Parameter)
		b = appendMessage(b, 3, m)
	}
	b = appendString(b, 4, s.Group)
	return b, nil
}

// field is one decoded wire field. Scalars land in x, length-delimited
// values in bytes.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	x     uint64
	bytes []byte
}

func parseFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.x, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.x = uint64(v)
		case protowire.Fixed64Type:
			f.x, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalCheckpoint(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	err := parseFields(b, func(f field) error {
		switch f.num {
		case 1:
			return unmarshalMetadata(f.bytes, &c.Metadata)
		case 2:
			return unmarshalTrainingState(f.bytes, &c.TrainingState)
		case 3:
			w, err := unmarshalWeight(f.bytes)
			if err != nil {
				return err
			}
			c.Weights = append(c.Weights, w)
		case 4:
			s, err := unmarshalOptimizerState(f.bytes)
			if err != nil {
				return err
			}
			c.OptimizerStates = append(c.OptimizerStates, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshalMetadata(b []byte, m *CheckpointMetadata) error {
	return parseFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Version = string(f.bytes)
		case 2:
			m.Framework = string(f.bytes)
		case 3:
			m.CreatedAt = time.Unix(0, int64(f.x))
		case 4:
			m.Description = string(f.bytes)
		case 5:
			m.Tags = append(m.Tags, string(f.bytes))
		case 6:
			m.RunID = string(f.bytes)
		}
		return nil
	})
}

func unmarshalTrainingState(b []byte, s *TrainingState) error {
	return parseFields(b, func(f field) error {
		switch f.num {
		case 1:
			s.Epoch = int(f.x)
		case 2:
			s.Step = int(f.x)
		case 3:
			s.LearningRate = math.Float32frombits(uint32(f.x))
		case 4:
			s.TotalSteps = int(f.x)
		}
		return nil
	})
}

func unmarshalShape(b []byte) ([]int, error) {
	var shape []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		shape = append(shape, int(v))
		b = b[n:]
	}
	return shape, nil
}

func unmarshalFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed float data has %d bytes", len(b))
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(v))
		b = b[n:]
	}
	return out, nil
}

func unmarshalHalfFloats(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("packed float16 data has %d bytes", len(b))
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		u := uint16(b[2*i]) | uint16(b[2*i+1])<<8
		out[i] = float16.Frombits(u).Float32()
	}
	return out, nil
}

func unmarshalWeight(b []byte) (WeightTensor, error) {
	var w WeightTensor
	err := parseFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			w.Name = string(f.bytes)
		case 2:
			w.Shape, err = unmarshalShape(f.bytes)
		case 3:
			w.Data, err = unmarshalFloats(f.bytes)
		case 4:
			w.Layer = string(f.bytes)
		case 5:
			w.Type = string(f.bytes)
		case 6:
			w.Data, err = unmarshalHalfFloats(f.bytes)
		case 7:
			w.Trainable = protowire.DecodeBool(f.x)
		}
		return err
	})
	if err != nil {
		return WeightTensor{}, fmt.Errorf("weight %q: %w", w.Name, err)
	}
	return w, nil
}

func unmarshalOptimizerState(b []byte) (OptimizerState, error) {
	var s OptimizerState
	err := parseFields(b, func(f field) error {
		switch f.num {
		case 1:
			s.Type = string(f.bytes)
		case 2:
			if len(f.bytes) == 0 {
				return nil
			}
			return json.Unmarshal(f.bytes, &s.Parameters)
		case 3:
			t, err := unmarshalOptimizerTensor(f.bytes)
			if err != nil {
				return err
			}
			s.StateData = append(s.StateData, t)
		case 4:
			s.Group = string(f.bytes)
		}
		return nil
	})
	return s, err
}

func unmarshalOptimizerTensor(b []byte) (OptimizerTensor, error) {
	var t OptimizerTensor
	err := parseFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.Name = string(f.bytes)
		case 2:
			t.Shape, err = unmarshalShape(f.bytes)
		case 3:
			t.Data, err = unmarshalFloats(f.bytes)
		case 4:
			t.StateType = string(f.bytes)
		case 5:
			t.Parameter = string(f.bytes)
		}
		return err
	})
	return t, err
}
