package protocol

const (
	identMinLen = 2
	identMaxLen = 19
)

// User is a validated "@name" token. Comparison is byte-exact; the zero
// value is not a valid user.
type User struct {
	ident string
}

// Room is a validated "#name" token. Comparison is byte-exact; the zero
// value is not a valid room.
type Room struct {
	ident string
}

// NewUser validates raw (including its leading '@') and returns the User it
// names.
func NewUser(raw []byte) (User, error) {
	if len(raw) == 0 || raw[0] != '@' {
		return User{}, ErrBadPrefix
	}

	if !validIdent(raw[1:]) {
		return User{}, ErrBadIdent
	}

	return User{ident: string(raw[1:])}, nil
}

// NewRoom validates raw (including its leading '#') and returns the Room it
// names.
func NewRoom(raw []byte) (Room, error) {
	if len(raw) == 0 || raw[0] != '#' {
		return Room{}, ErrBadPrefix
	}

	if !validIdent(raw[1:]) {
		return Room{}, ErrBadIdent
	}

	return Room{ident: string(raw[1:])}, nil
}

func (u User) Ident() string { return u.ident }
func (r Room) Ident() string { return r.ident }

func (u User) String() string { return "@" + u.ident }
func (r Room) String() string { return "#" + r.ident }

func (u User) token() {}
func (r Room) token() {}

// Token is a parameter of a Message: either a User or a Room.
type Token interface {
	String() string
	token()
}

var (
	_ Token = User{}
	_ Token = Room{}
)

func validIdent(b []byte) bool {
	if len(b) < identMinLen || len(b) > identMaxLen {
		return false
	}

	for _, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}

	return true
}
