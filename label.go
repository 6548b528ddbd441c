package featscan

import "fmt"

// LabelSpace tags the domain a counter id belongs to.
type LabelSpace int

const (
	// SpaceFeature ids are Feature values.
	SpaceFeature LabelSpace = iota
	// SpaceMnemonic ids are Mnemonic values.
	SpaceMnemonic
	// SpaceRegister ids are Register values.
	SpaceRegister
)

func (s LabelSpace) String() string {
	switch s {
	case SpaceFeature:
		return "feature"
	case SpaceMnemonic:
		return "mnemonic"
	case SpaceRegister:
		return "register"
	}
	return fmt.Sprintf("LabelSpace(%d)", int(s))
}

// Len returns the number of ids in the label space.
func (s LabelSpace) Len() int {
	switch s {
	case SpaceFeature:
		return FeatureCount
	case SpaceMnemonic:
		return MnemonicCount()
	case SpaceRegister:
		return RegisterCount
	}
	return 0
}

// Name returns the display name of id in the label space.
func (s LabelSpace) Name(id int) string {
	switch s {
	case SpaceFeature:
		return Feature(id).String()
	case SpaceMnemonic:
		return Mnemonic(id).String()
	case SpaceRegister:
		return Register(id).String()
	}
	return fmt.Sprintf("%s(%d)", s, id)
}
