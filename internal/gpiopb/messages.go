package gpiopb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Empty is the argument of GetLedState.
type Empty struct{}

// ButtonReq names one button.
type ButtonReq struct {
	Index int32
}

// SimpleReply carries the daemon acknowledgement text.
type SimpleReply struct {
	Msg string
}

// LedState is the decoded LED vector, one 0/1 entry per LED.
type LedState struct {
	Leds []int32
}

// StepReq asks the daemon to advance the simulation.
type StepReq struct {
	Times      int32
	IntervalMS int32
}

func (Empty) Proto() proto.Message {
	return dynamicpb.NewMessage(emptyDesc)
}

func (r ButtonReq) Proto() proto.Message {
	m := dynamicpb.NewMessage(buttonReqDesc)
	m.Set(fieldByName(buttonReqDesc, "index"), protoreflect.ValueOfInt32(r.Index))
	return m
}

func (r SimpleReply) Proto() proto.Message {
	m := dynamicpb.NewMessage(simpleReplyDesc)
	m.Set(fieldByName(simpleReplyDesc, "msg"), protoreflect.ValueOfString(r.Msg))
	return m
}

func (r LedState) Proto() proto.Message {
	m := dynamicpb.NewMessage(ledStateDesc)
	list := m.Mutable(fieldByName(ledStateDesc, "leds")).List()
	for _, v := range r.Leds {
		list.Append(protoreflect.ValueOfInt32(v))
	}
	return m
}

func (r StepReq) Proto() proto.Message {
	m := dynamicpb.NewMessage(stepReqDesc)
	m.Set(fieldByName(stepReqDesc, "times"), protoreflect.ValueOfInt32(r.Times))
	m.Set(fieldByName(stepReqDesc, "interval_ms"), protoreflect.ValueOfInt32(r.IntervalMS))
	return m
}

// EmptyFromProto checks that msg is a gpio_demo.Empty.
func EmptyFromProto(msg proto.Message) (Empty, error) {
	_, err := reflectAs(msg, emptyDesc)
	return Empty{}, err
}

func ButtonReqFromProto(msg proto.Message) (ButtonReq, error) {
	m, err := reflectAs(msg, buttonReqDesc)
	if err != nil {
		return ButtonReq{}, err
	}
	return ButtonReq{
		Index: int32(m.Get(fieldByName(buttonReqDesc, "index")).Int()),
	}, nil
}

func SimpleReplyFromProto(msg proto.Message) (SimpleReply, error) {
	m, err := reflectAs(msg, simpleReplyDesc)
	if err != nil {
		return SimpleReply{}, err
	}
	return SimpleReply{
		Msg: m.Get(fieldByName(simpleReplyDesc, "msg")).String(),
	}, nil
}

func LedStateFromProto(msg proto.Message) (LedState, error) {
	m, err := reflectAs(msg, ledStateDesc)
	if err != nil {
		return LedState{}, err
	}
	list := m.Get(fieldByName(ledStateDesc, "leds")).List()
	leds := make([]int32, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		leds = append(leds, int32(list.Get(i).Int()))
	}
	return LedState{Leds: leds}, nil
}

func StepReqFromProto(msg proto.Message) (StepReq, error) {
	m, err := reflectAs(msg, stepReqDesc)
	if err != nil {
		return StepReq{}, err
	}
	return StepReq{
		Times:      int32(m.Get(fieldByName(stepReqDesc, "times")).Int()),
		IntervalMS: int32(m.Get(fieldByName(stepReqDesc, "interval_ms")).Int()),
	}, nil
}

func reflectAs(msg proto.Message, want protoreflect.MessageDescriptor) (protoreflect.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message, want %s", want.FullName())
	}
	m := msg.ProtoReflect()
	if got := m.Descriptor().FullName(); got != want.FullName() {
		return nil, fmt.Errorf("message type %s, want %s", got, want.FullName())
	}
	return m, nil
}

func fieldByName(md protoreflect.MessageDescriptor, name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := md.Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("%s has no field %q", md.FullName(), name))
	}
	return fd
}
