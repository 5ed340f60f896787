package pinbridge

// TypeTag is the dynamic type of a foreign object.
// Values mirror R's SEXPTYPE codes so foreign runtimes can convert directly.
type TypeTag uint8

const (
	TypeNil         TypeTag = 0
	TypeSymbol      TypeTag = 1
	TypePairlist    TypeTag = 2
	TypeClosure     TypeTag = 3
	TypeEnvironment TypeTag = 4
	TypePromise     TypeTag = 5
	TypeLanguage    TypeTag = 6
	TypeSpecial     TypeTag = 7
	TypeBuiltin     TypeTag = 8
	TypeChar        TypeTag = 9
	TypeLogical     TypeTag = 10
	TypeInteger     TypeTag = 13
	TypeReal        TypeTag = 14
	TypeComplex     TypeTag = 15
	TypeString      TypeTag = 16
	TypeDots        TypeTag = 17
	TypeAny         TypeTag = 18
	TypeList        TypeTag = 19
	TypeExpression  TypeTag = 20
	TypeBytecode    TypeTag = 21
	TypeExternalPtr TypeTag = 22
	TypeWeakRef     TypeTag = 23
	TypeRaw         TypeTag = 24
	TypeS4          TypeTag = 25
)

var typeNames = map[TypeTag]string{
	TypeNil:         "NULL",
	TypeSymbol:      "symbol",
	TypePairlist:    "pairlist",
	TypeClosure:     "closure",
	TypeEnvironment: "environment",
	TypePromise:     "promise",
	TypeLanguage:    "language",
	TypeSpecial:     "special",
	TypeBuiltin:     "builtin",
	TypeChar:        "char",
	TypeLogical:     "logical",
	TypeInteger:     "integer",
	TypeReal:        "double",
	TypeComplex:     "complex",
	TypeString:      "character",
	TypeDots:        "...",
	TypeAny:         "any",
	TypeList:        "list",
	TypeExpression:  "expression",
	TypeBytecode:    "bytecode",
	TypeExternalPtr: "externalptr",
	TypeWeakRef:     "weakref",
	TypeRaw:         "raw",
	TypeS4:          "S4",
}

var typesByName map[string]TypeTag

func init() {
	typesByName = make(map[string]TypeTag, len(typeNames))
	for tag, name := range typeNames {
		typesByName[name] = tag
	}
}

// Valid reports whether t is one of the declared tags.
func (t TypeTag) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// String returns the name R's typeof() reports for the tag.
func (t TypeTag) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// TypeTagFromCode converts a raw SEXPTYPE code.
// Codes 11 and 12 are unused by R and are rejected like any other unknown code.
func TypeTagFromCode(code int32) (TypeTag, bool) {
	if code < 0 || code > int32(TypeS4) {
		return 0, false
	}
	t := TypeTag(code)
	return t, t.Valid()
}

// ParseTypeTag resolves a typeof() name such as "double" or "list".
func ParseTypeTag(name string) (TypeTag, bool) {
	t, ok := typesByName[name]
	return t, ok
}
