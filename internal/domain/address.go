package domain

// AddressKind distinguishes the singleton home address from client addresses.
type AddressKind string

const (
	AddressHome   AddressKind = "home"
	AddressClient AddressKind = "client"
)

// Address is one entry of the address book.
// ClientName is empty for the home address.
type Address struct {
	Kind       AddressKind `json:"kind"`
	ClientName string      `json:"client_name,omitempty"`
	Address    string      `json:"address"`
}
