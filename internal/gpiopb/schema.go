// Package gpiopb defines the gpio_demo.GpioDemo gRPC schema.
//
// The file descriptor is assembled from descriptorpb during package
// initialization and registered in the global protobuf registry, so server
// reflection and dynamic clients see the same schema that
// proto/gpio_demo.proto documents. Messages travel
// as dynamicpb values; messages.go converts them to plain Go structs.
package gpiopb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	FileName    = "gpio_demo.proto"
	PackageName = "gpio_demo"
	ServiceName = "gpio_demo.GpioDemo"
)

var (
	file = buildFile()

	emptyDesc       = file.Messages().ByName("Empty")
	buttonReqDesc   = file.Messages().ByName("ButtonReq")
	simpleReplyDesc = file.Messages().ByName("SimpleReply")
	ledStateDesc    = file.Messages().ByName("LedState")
	stepReqDesc     = file.Messages().ByName("StepReq")
)

func buildFile() protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("build %s descriptor: %v", FileName, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s descriptor: %v", FileName, err))
	}
	return fd
}

// File returns the registered descriptor for gpio_demo.proto.
func File() protoreflect.FileDescriptor {
	return file
}

// Service returns the GpioDemo service descriptor.
func Service() protoreflect.ServiceDescriptor {
	return file.Services().ByName("GpioDemo")
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String(PackageName),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/rbright/gpiobridge/internal/gpiopb"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Empty"),
			message("ButtonReq", scalar("index", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32)),
			message("SimpleReply", scalar("msg", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)),
			message("LedState", repeated("leds", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32)),
			message("StepReq",
				scalar("times", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				scalar("interval_ms", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("GpioDemo"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("PressButton", "ButtonReq", "SimpleReply"),
				method("ReleaseButton", "ButtonReq", "SimpleReply"),
				method("GetLedState", "Empty", "LedState"),
				method("Step", "StepReq", "SimpleReply"),
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:  proto.String(name),
		Field: fields,
	}
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return field(name, number, typ, descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL)
}

// repeated scalars are packed by default under proto3.
func repeated(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return field(name, number, typ, descriptorpb.FieldDescriptorProto_LABEL_REPEATED)
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, label descriptorpb.FieldDescriptorProto_Label) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(jsonName(name)),
		Number:   proto.Int32(number),
		Type:     typ.Enum(),
		Label:    label.Enum(),
	}
}

func method(name, input, output string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + PackageName + "." + input),
		OutputType: proto.String("." + PackageName + "." + output),
	}
}

// jsonName mirrors protoc's lowerCamelCase field naming.
func jsonName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch == '_' {
			upper = true
			continue
		}
		if upper && ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		upper = false
		out = append(out, ch)
	}
	return string(out)
}
