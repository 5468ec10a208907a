package anyrnn

import (
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestVecStateReduce(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	s := NewVecState(c.MakeVectorData([]float64{1, 2}), 4)
	s.Vector.SetData([]float64{1, 2, 3, 4, 5, 6, 7, 8})

	reduced := s.Reduce(PresentMap{true, false, true, false}).(*VecState)
	if !reflect.DeepEqual(reduced.Vector.Data(), []float64{1, 2, 5, 6}) {
		t.Errorf("unexpected reduced data: %v", reduced.Vector.Data())
	}
	reduced = reduced.Reduce(PresentMap{false, false, true, false}).(*VecState)
	if !reflect.DeepEqual(reduced.Vector.Data(), []float64{5, 6}) {
		t.Errorf("unexpected reduced data: %v", reduced.Vector.Data())
	}
}

func TestVecStateExpand(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	s := &VecState{
		Vector:     c.MakeVectorData([]float64{1, 2, 3, 4}),
		PresentMap: PresentMap{false, true, false, true},
	}
	expanded := s.Expand(Full(4)).(*VecState)
	expected := []float64{0, 0, 1, 2, 0, 0, 3, 4}
	if !reflect.DeepEqual(expanded.Vector.Data(), expected) {
		t.Errorf("expected %v but got %v", expected, expanded.Vector.Data())
	}
}

func TestVecStateRoundTrip(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	s := NewVecState(c.MakeVectorData([]float64{0.5, -1, 2}), 3)
	pres := PresentMap{true, false, true}
	back := s.Reduce(pres).(*VecState).Expand(Full(3)).(*VecState)
	expected := []float64{0.5, -1, 2, 0, 0, 0, 0.5, -1, 2}
	if !reflect.DeepEqual(back.Vector.Data(), expected) {
		t.Errorf("expected %v but got %v", expected, back.Vector.Data())
	}
}
