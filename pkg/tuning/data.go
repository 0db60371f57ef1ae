package tuning

import (
	"golang.org/x/exp/slices"

	"github.com/paratune/paratune/pkg/streambuf"
)

// SystemData is everything a system is evaluated on: one training example plus the parameters
// and score of its latest evaluation. It is the payload of a tuning job and the only value that
// crosses the wire in the tuning protocol.
type SystemData struct {
	// Rank is the id of the job carrying the data.
	Rank int
	// OpID is the tag of the operation pending on the data, or OpNone.
	OpID       int
	Parameters []float64
	Score      float64

	// Name, Values and Fail describe the training example.
	Name   string
	Values []float64
	// Fail makes the built-in systems refuse to score the example.
	Fail bool
}

// NewSystemData returns data for an example that has not been evaluated yet.
func NewSystemData(name string, values ...float64) *SystemData {
	return &SystemData{Rank: -1, OpID: OpNone, Name: name, Values: values}
}

// Clone returns a deep copy of d.
func (d *SystemData) Clone() *SystemData {
	c := *d
	c.Parameters = slices.Clone(d.Parameters)
	c.Values = slices.Clone(d.Values)
	return &c
}

// Serialize implements streambuf.Streamable.
func (d *SystemData) Serialize(b *streambuf.Buffer) {
	b.PutInt32(int32(d.Rank))
	b.PutInt32(int32(d.OpID))
	b.PutFloat64s(d.Parameters)
	b.PutFloat64(d.Score)
	b.PutString(d.Name)
	b.PutFloat64s(d.Values)
	b.PutBool(d.Fail)
}

// Deserialize implements streambuf.Streamable.
func (d *SystemData) Deserialize(b *streambuf.Buffer) error {
	dec := streambuf.NewDecoder(b)
	rank := dec.Int32("rank")
	opID := dec.Int32("op_id")
	params := dec.Float64s("parameters")
	score := dec.Float64("score")
	name := dec.String("name")
	values := dec.Float64s("values")
	fail := dec.Bool("fail")
	if err := dec.Err(); err != nil {
		return err
	}
	*d = SystemData{
		Rank:       int(rank),
		OpID:       int(opID),
		Parameters: params,
		Score:      score,
		Name:       name,
		Values:     values,
		Fail:       fail,
	}
	return nil
}

// DataSet is an ordered list of training examples.
type DataSet []*SystemData

// Serialize implements streambuf.Streamable. A nil entry is written as empty data.
func (s *DataSet) Serialize(b *streambuf.Buffer) {
	b.PutUint32(uint32(len(*s)))
	for _, d := range *s {
		if d == nil {
			d = NewSystemData("")
		}
		d.Serialize(b)
	}
}

// Deserialize implements streambuf.Streamable.
func (s *DataSet) Deserialize(b *streambuf.Buffer) error {
	dec := streambuf.NewDecoder(b)
	n := dec.Uint32("size")
	if err := dec.Err(); err != nil {
		return err
	}
	set := make(DataSet, 0, n)
	for i := uint32(0); i < n; i++ {
		d := &SystemData{}
		dec.Streamable("example", d)
		if err := dec.Err(); err != nil {
			return err
		}
		set = append(set, d)
	}
	*s = set
	return nil
}
