package models

import "errors"

// ItemKind classifies a registered item. Values match the legacy import files.
type ItemKind string

const (
	ItemKindDrug       ItemKind = "MEDICAMENTO"
	ItemKindConsumable ItemKind = "MATERIAL_CONSUMO"
	ItemKindEquipment  ItemKind = "EQUIPAMENTO"
	ItemKindService    ItemKind = "SERVICO"
	ItemKindOther      ItemKind = "OUTRO"
)

func ParseItemKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case ItemKindDrug, ItemKindConsumable, ItemKindEquipment, ItemKindService, ItemKindOther:
		return ItemKind(s), nil
	case "":
		return ItemKindOther, nil
	default:
		return "", errors.New("invalid item kind")
	}
}

type HealthUnitKind string

const (
	HealthUnitKindSecretariat  HealthUnitKind = "SECRETARIA"
	HealthUnitKindHospital     HealthUnitKind = "HOSPITAL"
	HealthUnitKindUPA          HealthUnitKind = "UPA"
	HealthUnitKindUBS          HealthUnitKind = "UBS"
	HealthUnitKindCAPS         HealthUnitKind = "CAPS"
	HealthUnitKindSurveillance HealthUnitKind = "VIGILANCIA"
	HealthUnitKindPharmacy     HealthUnitKind = "FARMACIA"
	HealthUnitKindLaboratory   HealthUnitKind = "LABORATORIO"
	HealthUnitKindOther        HealthUnitKind = "OUTRO"
)

func ParseHealthUnitKind(s string) (HealthUnitKind, error) {
	switch HealthUnitKind(s) {
	case HealthUnitKindSecretariat, HealthUnitKindHospital, HealthUnitKindUPA,
		HealthUnitKindUBS, HealthUnitKindCAPS, HealthUnitKindSurveillance,
		HealthUnitKindPharmacy, HealthUnitKindLaboratory, HealthUnitKindOther:
		return HealthUnitKind(s), nil
	case "":
		return HealthUnitKindOther, nil
	default:
		return "", errors.New("invalid health unit kind")
	}
}

// ConsumerDocumentType tags which document a consumption record belongs to.
// A tagged pair (consumer_type, consumer_id) replaces nullable dual foreign
// keys so handling stays exhaustive.
type ConsumerDocumentType string

const (
	ConsumerDocumentTypeSubContract ConsumerDocumentType = "Contratinho"
	ConsumerDocumentTypeCommitment  ConsumerDocumentType = "Empenho"
)

func (t ConsumerDocumentType) Valid() bool {
	switch t {
	case ConsumerDocumentTypeSubContract, ConsumerDocumentTypeCommitment:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "gestor"
	UserRoleReader  UserRole = "leitura"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleReader:
		return true
	}
	return false
}
