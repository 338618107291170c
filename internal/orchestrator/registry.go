package orchestrator

import (
	"github.com/automatacontrols/bms-core/internal/equipment"
	"github.com/automatacontrols/bms-core/internal/equipment/airhandler"
	"github.com/automatacontrols/bms-core/internal/equipment/boiler"
	"github.com/automatacontrols/bms-core/internal/equipment/doas"
	"github.com/automatacontrols/bms-core/internal/equipment/exhaustfan"
	"github.com/automatacontrols/bms-core/internal/equipment/faircoil"
	"github.com/automatacontrols/bms-core/internal/equipment/generic"
	"github.com/automatacontrols/bms-core/internal/equipment/geothermal"
	"github.com/automatacontrols/bms-core/internal/equipment/pump"
	"github.com/automatacontrols/bms-core/internal/equipment/steambundle"
)

// buildRegistry registers every shipped equipment type's control function
// (spec.md §4.6) under its site-agnostic type name. Site-specific overrides
// are registered separately, per deployment, via
// Registry.RegisterSiteOverride — this core ships none of its own.
func buildRegistry() *equipment.Registry {
	r := equipment.NewRegistry()
	r.Register(boiler.EquipmentTypeComfort, boiler.ControlComfort)
	r.Register(boiler.EquipmentTypeDomestic, boiler.ControlDomestic)
	r.Register(faircoil.EquipmentType, faircoil.Control)
	r.Register(airhandler.EquipmentType, airhandler.Control)
	r.Register(pump.EquipmentType, pump.Control)
	r.Register(doas.EquipmentType, doas.Control)
	r.Register(geothermal.EquipmentType, geothermal.Control)
	r.Register(steambundle.EquipmentType, steambundle.Control)
	r.Register(exhaustfan.EquipmentType, exhaustfan.Control)
	r.Register(generic.EquipmentType, generic.Control)
	return r
}
