package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"

	plushieArm "plushie_arm"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: plushieArm.DeliveryModel},
		resource.APIModel{API: generic.API, Model: plushieArm.RepositionModel},
		resource.APIModel{API: discovery.API, Model: plushieArm.DiscoveryModel},
	)
}
