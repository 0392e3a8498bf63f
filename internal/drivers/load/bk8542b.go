package load

import "github.com/davmor83/labrig-core/internal/transport"

// B&K Precision 8542B model constants.
const (
	bk8542bID           = "B&K Precision, 8542B"
	bk8542bManufacturer = "B&K Precision"
	bk8542bModel        = "8542B"
	bk8542bMemorySize   = 5
)

// New8542B builds a driver for the B&K Precision 8542B single-channel DC
// electronic load. The model carries five setup memory slots and honors
// the bus trigger.
func New8542B(link transport.Transport, simulate bool) (*Driver, error) {
	return New(link, Options{
		Channels:        1,
		Simulate:        simulate,
		Description:     "B&K Precision 8542B DC electronic load",
		Manufacturer:    bk8542bManufacturer,
		Model:           bk8542bModel,
		ExpectedID:      bk8542bID,
		MemorySize:      bk8542bMemorySize,
		SoftwareTrigger: true,
	})
}
