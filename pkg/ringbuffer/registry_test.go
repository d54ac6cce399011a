package ringbuffer_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/framerelay/pkg/ringbuffer"
	"github.com/tauraamui/framerelay/pkg/shm"
)

type RegistryTestSuite struct {
	suite.Suite
	registry *ringbuffer.Registry
}

func (suite *RegistryTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *RegistryTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.registry = ringbuffer.NewRegistry(ringbuffer.KindIngest, shm.Heap())
}

func (suite *RegistryTestSuite) TearDownTest() {
	require.NoError(suite.T(), suite.registry.Close())
}

func (suite *RegistryTestSuite) TestCreateUsesDefaultSlotCount() {
	buf, err := suite.registry.Create("cam-1", 2, 2, 3, 0)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), ringbuffer.DefaultSlotCount, buf.SlotCount())
	assert.Equal(suite.T(), 9, buf.Capacity())
	assert.Equal(suite.T(), 12, buf.Geometry().PayloadSize())
}

func (suite *RegistryTestSuite) TestCreateRejectsDuplicateID() {
	_, err := suite.registry.Create("cam-1", 2, 2, 3, 4)
	require.NoError(suite.T(), err)

	_, err = suite.registry.Create("cam-1", 2, 2, 3, 4)
	assert.EqualError(suite.T(), err, "ingest buffer for [cam-1] already exists")
}

func (suite *RegistryTestSuite) TestCreateRejectsInvalidGeometry() {
	_, err := suite.registry.Create("cam-1", 0, 2, 3, 4)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), 0, suite.registry.Len())
}

func (suite *RegistryTestSuite) TestGetAndGetAll() {
	first, err := suite.registry.Create("cam-1", 2, 2, 3, 4)
	require.NoError(suite.T(), err)
	second, err := suite.registry.Create("cam-2", 4, 4, 1, 4)
	require.NoError(suite.T(), err)

	got, ok := suite.registry.Get("cam-1")
	assert.True(suite.T(), ok)
	assert.Same(suite.T(), first, got)

	_, ok = suite.registry.Get("cam-3")
	assert.False(suite.T(), ok)

	all := suite.registry.GetAll()
	assert.Len(suite.T(), all, 2)
	assert.Same(suite.T(), second, all["cam-2"])

	delete(all, "cam-1")
	assert.Equal(suite.T(), 2, suite.registry.Len())
}

func (suite *RegistryTestSuite) TestRemoveClosesBuffer() {
	buf, err := suite.registry.Create("cam-1", 2, 2, 3, 4)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), suite.registry.Remove("cam-1"))
	assert.True(suite.T(), buf.IsClosed())
	assert.False(suite.T(), suite.registry.Remove("cam-1"))

	_, ok := suite.registry.Get("cam-1")
	assert.False(suite.T(), ok)
}

func (suite *RegistryTestSuite) TestCloseReleasesEverything() {
	first, err := suite.registry.Create("cam-1", 2, 2, 3, 4)
	require.NoError(suite.T(), err)
	second, err := suite.registry.Create("cam-2", 2, 2, 3, 4)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.registry.Close())
	assert.True(suite.T(), first.IsClosed())
	assert.True(suite.T(), second.IsClosed())
	assert.Equal(suite.T(), 0, suite.registry.Len())
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, &RegistryTestSuite{})
}

func TestRegistriesHaveDisjointKeyspaces(t *testing.T) {
	is := is.New(t)

	ingest := ringbuffer.NewRegistry(ringbuffer.KindIngest, shm.Heap())
	display := ringbuffer.NewRegistry(ringbuffer.KindDisplay, shm.Heap())
	defer ingest.Close()
	defer display.Close()

	in, err := ingest.Create("cam-1", 2, 2, 3, 4)
	is.NoErr(err)
	out, err := display.Create("cam-1", 2, 2, 3, 4)
	is.NoErr(err)
	is.True(in != out)

	is.True(ingest.Remove("cam-1"))
	_, ok := display.Get("cam-1")
	is.True(ok)
	is.Equal(display.Kind(), ringbuffer.KindDisplay)
}
