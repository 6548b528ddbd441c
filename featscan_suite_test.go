package featscan_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFeatscan(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Featscan Suite")
}
