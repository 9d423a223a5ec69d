package protocol

import (
	"fmt"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/utils"
)

type NewSourceFunc func() Source

var RegisteredSources = map[types.SourceType]NewSourceFunc{}

// NewSource dispatches on the config's type and loads the payload into the source config
func NewSource(config *types.SourceConfig) (Source, error) {
	newfunc, found := RegisteredSources[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid source type has been passed [%s]", config.Type)
	}

	source := newfunc()
	configRef := source.GetConfigRef()
	if err := utils.Unmarshal(config.Source, configRef); err != nil {
		return nil, err
	}
	if err := configRef.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %s", err)
	}

	return source, nil
}
