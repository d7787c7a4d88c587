package protocol

import "fmt"

// MessageID identifies a message type on the wire.
type MessageID uint16

const (
	MsgLogin             MessageID = 100
	MsgLoginReply        MessageID = 101
	MsgClientJoined      MessageID = 102
	MsgClientLeft        MessageID = 103
	MsgCreateEntity      MessageID = 110
	MsgRemoveEntity      MessageID = 111
	MsgCreateComponents  MessageID = 112
	MsgUpdateComponents  MessageID = 113
	MsgRemoveComponents  MessageID = 114
	MsgEntityIDCollision MessageID = 115
	MsgEntityAction      MessageID = 120
)

var messageNames = map[MessageID]string{
	MsgLogin:             "Login",
	MsgLoginReply:        "LoginReply",
	MsgClientJoined:      "ClientJoined",
	MsgClientLeft:        "ClientLeft",
	MsgCreateEntity:      "CreateEntity",
	MsgRemoveEntity:      "RemoveEntity",
	MsgCreateComponents:  "CreateComponents",
	MsgUpdateComponents:  "UpdateComponents",
	MsgRemoveComponents:  "RemoveComponents",
	MsgEntityIDCollision: "EntityIDCollision",
	MsgEntityAction:      "EntityAction",
}

func (id MessageID) String() string {
	if n, ok := messageNames[id]; ok {
		return n
	}
	return fmt.Sprintf("Message(%d)", uint16(id))
}

// Message is a typed protocol message.
type Message interface {
	MessageID() MessageID
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Login carries the client's login properties as an XML document.
type Login struct {
	LoginData []byte
}

func (*Login) MessageID() MessageID { return MsgLogin }

func (m *Login) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.bytes16("loginData", m.LoginData)
	return w.result()
}

func (m *Login) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.LoginData = r.bytes16()
	return r.done()
}

// LegacyLogin is the older user name and password login layout, sharing the
// Login message id.
type LegacyLogin struct {
	UserName []byte
	Password []byte
}

func (*LegacyLogin) MessageID() MessageID { return MsgLogin }

func (m *LegacyLogin) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.bytes8("userName", m.UserName)
	w.bytes8("password", m.Password)
	return w.result()
}

func (m *LegacyLogin) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.UserName = r.bytes8()
	m.Password = r.bytes8()
	return r.done()
}

type LoginReply struct {
	Success bool
	UserID  uint8
	Data    []byte
}

func (*LoginReply) MessageID() MessageID { return MsgLoginReply }

func (m *LoginReply) MarshalBinary() ([]byte, error) {
	w := &writer{}
	if m.Success {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u8(m.UserID)
	w.bytes16("loginReplyData", m.Data)
	return w.result()
}

func (m *LoginReply) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.Success = r.u8() != 0
	m.UserID = r.u8()
	m.Data = r.bytes16()
	return r.done()
}

type ClientJoined struct {
	UserID uint8
}

func (*ClientJoined) MessageID() MessageID { return MsgClientJoined }

func (m *ClientJoined) MarshalBinary() ([]byte, error) {
	return []byte{m.UserID}, nil
}

func (m *ClientJoined) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.UserID = r.u8()
	return r.done()
}

type ClientLeft struct {
	UserID uint8
}

func (*ClientLeft) MessageID() MessageID { return MsgClientLeft }

func (m *ClientLeft) MarshalBinary() ([]byte, error) {
	return []byte{m.UserID}, nil
}

func (m *ClientLeft) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.UserID = r.u8()
	return r.done()
}

// ComponentData is one serialized component inside an entity message.
type ComponentData struct {
	TypeID uint32
	Name   string
	Data   []byte
}

// ComponentRef names a component without its data.
type ComponentRef struct {
	TypeID uint32
	Name   string
}

func writeComponents(w *writer, components []ComponentData) {
	w.count16("components", len(components))
	for _, c := range components {
		w.u32(c.TypeID)
		w.bytes8("componentName", []byte(c.Name))
		w.bytes16("componentData", c.Data)
	}
}

func readComponents(r *reader) []ComponentData {
	n := int(r.u16())
	var out []ComponentData
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, ComponentData{
			TypeID: r.u32(),
			Name:   string(r.bytes8()),
			Data:   r.bytes16(),
		})
	}
	return out
}

type CreateEntity struct {
	EntityID   uint32
	Components []ComponentData
}

func (*CreateEntity) MessageID() MessageID { return MsgCreateEntity }

func (m *CreateEntity) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	writeComponents(w, m.Components)
	return w.result()
}

func (m *CreateEntity) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	m.Components = readComponents(r)
	return r.done()
}

type RemoveEntity struct {
	EntityID uint32
}

func (*RemoveEntity) MessageID() MessageID { return MsgRemoveEntity }

func (m *RemoveEntity) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	return w.result()
}

func (m *RemoveEntity) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	return r.done()
}

type CreateComponents struct {
	EntityID   uint32
	Components []ComponentData
}

func (*CreateComponents) MessageID() MessageID { return MsgCreateComponents }

func (m *CreateComponents) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	writeComponents(w, m.Components)
	return w.result()
}

func (m *CreateComponents) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	m.Components = readComponents(r)
	return r.done()
}

// UpdateComponents carries per-component deltas.
type UpdateComponents struct {
	EntityID   uint32
	Components []ComponentData
}

func (*UpdateComponents) MessageID() MessageID { return MsgUpdateComponents }

func (m *UpdateComponents) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	writeComponents(w, m.Components)
	return w.result()
}

func (m *UpdateComponents) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	m.Components = readComponents(r)
	return r.done()
}

type RemoveComponents struct {
	EntityID   uint32
	Components []ComponentRef
}

func (*RemoveComponents) MessageID() MessageID { return MsgRemoveComponents }

func (m *RemoveComponents) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	w.count16("components", len(m.Components))
	for _, c := range m.Components {
		w.u32(c.TypeID)
		w.bytes8("componentName", []byte(c.Name))
	}
	return w.result()
}

func (m *RemoveComponents) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	n := int(r.u16())
	m.Components = nil
	for i := 0; i < n && r.err == nil; i++ {
		m.Components = append(m.Components, ComponentRef{
			TypeID: r.u32(),
			Name:   string(r.bytes8()),
		})
	}
	return r.done()
}

// EntityIDCollision tells a client that the server renumbered its entity.
type EntityIDCollision struct {
	OldEntityID uint32
	NewEntityID uint32
}

func (*EntityIDCollision) MessageID() MessageID { return MsgEntityIDCollision }

func (m *EntityIDCollision) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.OldEntityID)
	w.u32(m.NewEntityID)
	return w.result()
}

func (m *EntityIDCollision) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.OldEntityID = r.u32()
	m.NewEntityID = r.u32()
	return r.done()
}

type EntityAction struct {
	EntityID      uint32
	Name          string
	ExecutionType uint8
	Parameters    []string
}

func (*EntityAction) MessageID() MessageID { return MsgEntityAction }

func (m *EntityAction) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u32(m.EntityID)
	w.bytes8("actionName", []byte(m.Name))
	w.u8(m.ExecutionType)
	w.count8("parameters", len(m.Parameters))
	for _, p := range m.Parameters {
		w.bytes16("parameter", []byte(p))
	}
	return w.result()
}

func (m *EntityAction) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	m.EntityID = r.u32()
	m.Name = string(r.bytes8())
	m.ExecutionType = r.u8()
	n := int(r.u8())
	m.Parameters = nil
	for i := 0; i < n && r.err == nil; i++ {
		m.Parameters = append(m.Parameters, string(r.bytes16()))
	}
	return r.done()
}

// New returns an empty message for id.
func New(id MessageID) (Message, error) {
	switch id {
	case MsgLogin:
		return &Login{}, nil
	case MsgLoginReply:
		return &LoginReply{}, nil
	case MsgClientJoined:
		return &ClientJoined{}, nil
	case MsgClientLeft:
		return &ClientLeft{}, nil
	case MsgCreateEntity:
		return &CreateEntity{}, nil
	case MsgRemoveEntity:
		return &RemoveEntity{}, nil
	case MsgCreateComponents:
		return &CreateComponents{}, nil
	case MsgUpdateComponents:
		return &UpdateComponents{}, nil
	case MsgRemoveComponents:
		return &RemoveComponents{}, nil
	case MsgEntityIDCollision:
		return &EntityIDCollision{}, nil
	case MsgEntityAction:
		return &EntityAction{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, uint16(id))
	}
}

// Decode parses data as the message type identified by id.
func Decode(id MessageID, data []byte) (Message, error) {
	m, err := New(id)
	if err != nil {
		return nil, err
	}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	return m, nil
}

// Info carries the delivery attributes of a message type.
type Info struct {
	Reliable bool
	InOrder  bool
	Priority uint8
}

// InfoFor returns the delivery attributes of id. Every scene and login
// message is reliable and in order.
func InfoFor(id MessageID) Info {
	return Info{Reliable: true, InOrder: true, Priority: 100}
}
